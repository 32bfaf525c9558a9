package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/enactgo/enact/backend"
	"github.com/enactgo/enact/backend/sqlite"
	"github.com/enactgo/enact/client"
	"github.com/enactgo/enact/workflow"
)

func main() {
	ctx := context.Background()

	r := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("enact sample"),
		semconv.ServiceVersionKey.String("v0.1.0"),
		attribute.String("environment", "sample"),
	)

	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		panic(err)
	}

	tp := trace.NewTracerProvider(
		trace.WithSyncer(exp),
		trace.WithResource(r),
	)
	defer tp.Shutdown(ctx)

	otel.SetTracerProvider(tp)

	b := sqlite.NewInMemoryBackend(backend.WithTracerProvider(tp))
	defer b.Close()

	c := client.New(b)
	defer c.Close()

	wf, err := c.CreateWorkflow(ctx, "Signoff", "two step signoff", "admin")
	if err != nil {
		panic(err)
	}

	open := workflow.NewState(wf.ID, "Open")
	open.IsStartState = true

	done := workflow.NewState(wf.ID, "Done")
	done.IsEndState = true

	for _, s := range []*workflow.State{open, done} {
		if err := c.AddState(ctx, s); err != nil {
			panic(err)
		}
	}

	finish := workflow.NewTransition(wf.ID, "Finish", open.ID, done.ID)
	if err := c.AddTransition(ctx, finish); err != nil {
		panic(err)
	}

	if err := c.ActivateWorkflow(ctx, wf.ID); err != nil {
		panic(err)
	}

	a, err := c.CreateActivity(ctx, wf.ID, "doc-1", "alice")
	if err != nil {
		panic(err)
	}

	if _, err := c.Start(ctx, a.ID, "alice"); err != nil {
		panic(err)
	}

	if _, err := c.Progress(ctx, a.ID, finish.ID, "alice", ""); err != nil {
		panic(err)
	}
}
