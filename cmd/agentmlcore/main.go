// Command agentmlcore compiles and runs a single SCXML document to
// completion, printing state transitions as they happen. Grounded on the
// teacher's validator/cmd/validate/main.go: no flag library, os.Args
// parsed by hand, log.Fatalf on unrecoverable errors.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/agentflare-ai/agentmlcore/engine"
	"github.com/agentflare-ai/agentmlcore/observer"
	"github.com/agentflare-ai/agentmlcore/tracer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: agentmlcore <scxml-file> [event...]")
		os.Exit(1)
	}
	scxmlFile := os.Args[1]

	source, err := os.ReadFile(scxmlFile)
	if err != nil {
		log.Fatalf("failed to read %s: %v", scxmlFile, err)
	}

	diagnostics := tracer.New(slog.Default())
	rt := engine.New(engine.WithTracer(diagnostics))

	ctx := context.Background()
	machine, err := rt.New(ctx, source, engine.Options{
		FileDir:  pathDir(scxmlFile),
		FileName: scxmlFile,
	})
	if err != nil {
		log.Fatalf("compile failed: %v", err)
	}

	var once sync.Once
	done := make(chan struct{})
	rt.Observe(observer.ObserverFunc(func(s observer.Signal) {
		switch s.Kind {
		case observer.EnterState:
			fmt.Printf("-> enter %s\n", s.StateID)
		case observer.ExitState:
			fmt.Printf("<- exit  %s\n", s.StateID)
		case observer.Exit:
			fmt.Printf("== exit interpreter (final=%t)\n", s.Final)
			once.Do(func() { close(done) })
		}
	}))

	if err := machine.Start(ctx); err != nil {
		log.Fatalf("start failed: %v", err)
	}

	for _, name := range os.Args[2:] {
		if err := machine.Send(ctx, name, nil); err != nil {
			log.Fatalf("send %q failed: %v", name, err)
		}
	}

	<-done

	fmt.Println("final configuration:", machine.Configuration())

	if diagnostics.HasErrors() {
		for _, t := range diagnostics.Diagnostics() {
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", t.Level, t.Code, t.Message)
		}
		os.Exit(1)
	}
}

func pathDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "."
}
