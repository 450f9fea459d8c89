package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maruel/docstore/internal/docdb"
	apierrors "github.com/maruel/docstore/internal/errors"
	"github.com/maruel/docstore/internal/models"
	"github.com/maruel/docstore/internal/storage"
)

// Dispatcher executes requests against a Registry.
type Dispatcher struct {
	reg     *storage.Registry
	auth    *Authenticator
	metrics *Metrics
}

// NewDispatcher returns a Dispatcher. auth and metrics may be nil.
func NewDispatcher(reg *storage.Registry, auth *Authenticator, metrics *Metrics) *Dispatcher {
	return &Dispatcher{reg: reg, auth: auth, metrics: metrics}
}

// HandleLine decodes one request and executes it. It never returns nil.
func (d *Dispatcher) HandleLine(ctx context.Context, line []byte) *models.Response {
	req, err := decodeRequest(line)
	if err != nil {
		resp := models.Failure(err)
		d.metrics.observeRequest("", resp, 0)
		return resp
	}
	return d.Handle(ctx, req)
}

func decodeRequest(line []byte) (*models.Request, error) {
	var req models.Request
	dec := json.NewDecoder(bytes.NewReader(line))
	if err := dec.Decode(&req); err != nil {
		return nil, apierrors.BadRequest("invalid JSON request").Wrap(err)
	}
	if dec.More() {
		return nil, apierrors.BadRequest("unexpected data after the request object")
	}
	return &req, nil
}

// Handle validates, authorizes and executes req. It never returns nil.
func (d *Dispatcher) Handle(ctx context.Context, req *models.Request) *models.Response {
	start := time.Now()
	resp := d.handle(ctx, req)
	dur := time.Since(start)
	d.metrics.observeRequest(req.Operation, resp, dur)
	if resp.Status == models.StatusError && resp.Code != apierrors.ErrNotFound {
		slog.InfoContext(ctx, "Request failed", "op", req.Operation, "db", req.Database, "collection", req.Collection, "code", resp.Code, "err", resp.Message)
	} else {
		slog.DebugContext(ctx, "Request", "op", req.Operation, "db", req.Database, "collection", req.Collection, "count", resp.Count, "dur", dur)
	}
	return resp
}

func (d *Dispatcher) handle(ctx context.Context, req *models.Request) *models.Response {
	if err := req.Validate(); err != nil {
		return models.Failure(err)
	}
	if err := d.auth.Authorize(req); err != nil {
		return models.Failure(err)
	}
	switch req.Operation {
	case models.OpInsert:
		return d.insert(ctx, req)
	case models.OpFind:
		return d.find(ctx, req)
	case models.OpDelete:
		return d.delete(ctx, req)
	case models.OpDrop:
		return d.drop(ctx, req)
	}
	return models.Failure(apierrors.BadRequest("unknown operation"))
}

func (d *Dispatcher) insert(ctx context.Context, req *models.Request) *models.Response {
	doc, err := docdb.DecodeDocument(req.Data)
	if err != nil {
		return models.Failure(apierrors.BadRequest("data must be a JSON object").Wrap(err))
	}
	stored, err := d.reg.Insert(ctx, req.Database, req.Collection, doc)
	if err != nil {
		return models.Failure(err)
	}
	return models.Success(fmt.Sprintf("document %s inserted", stored.ID()))
}

func (d *Dispatcher) find(ctx context.Context, req *models.Request) *models.Response {
	f, err := docdb.ParseFilter(req.Query)
	if err != nil {
		return models.Failure(apierrors.InvalidFilter(err))
	}
	docs, err := d.reg.Find(ctx, req.Database, req.Collection, f)
	if err != nil {
		return models.Failure(err)
	}
	if len(docs) == 0 {
		return models.Failure(apierrors.NotFound("no documents found"))
	}
	return models.Matched(fmt.Sprintf("%d documents found", len(docs)), docs)
}

func (d *Dispatcher) delete(ctx context.Context, req *models.Request) *models.Response {
	f, err := docdb.ParseFilter(req.Query)
	if err != nil {
		return models.Failure(apierrors.InvalidFilter(err))
	}
	docs, err := d.reg.Delete(ctx, req.Database, req.Collection, f)
	if err != nil {
		return models.Failure(err)
	}
	if len(docs) == 0 {
		return models.Failure(apierrors.NotFound("no documents to delete were found"))
	}
	return models.Matched(fmt.Sprintf("%d documents deleted", len(docs)), docs)
}

func (d *Dispatcher) drop(ctx context.Context, req *models.Request) *models.Response {
	if err := d.reg.Drop(ctx, req.Database, req.Collection); err != nil {
		return models.Failure(err)
	}
	return models.Success(fmt.Sprintf("collection %s dropped", req.Collection))
}
