// Package models defines the request and response objects exchanged with
// docstore clients.
package models

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/maruel/docstore/internal/docdb"
	apierrors "github.com/maruel/docstore/internal/errors"
)

// Operation is the kind of a request.
type Operation string

const (
	// OpInsert stores Data as a new document.
	OpInsert Operation = "insert"
	// OpFind returns documents matching Query.
	OpFind Operation = "find"
	// OpDelete removes and returns documents matching Query.
	OpDelete Operation = "delete"
	// OpDrop removes the whole collection.
	OpDrop Operation = "drop"
)

// IsWrite reports whether the operation mutates a collection.
func (o Operation) IsWrite() bool {
	return o == OpInsert || o == OpDelete || o == OpDrop
}

// Status is the outcome of a request.
type Status string

const (
	// StatusSuccess is set when the operation was applied.
	StatusSuccess Status = "success"
	// StatusError is set otherwise.
	StatusError Status = "error"
)

// Request is one client request.
type Request struct {
	Database   string          `json:"database" jsonschema:"description=Database name; maps to a directory"`
	Collection string          `json:"collection" jsonschema:"description=Collection name; maps to <database>/<collection>.json"`
	Operation  Operation       `json:"operation" jsonschema:"enum=insert,enum=find,enum=delete,enum=drop"`
	Data       json.RawMessage `json:"data,omitempty" jsonschema:"description=Document to insert (insert only),type=object"`
	Query      json.RawMessage `json:"query,omitempty" jsonschema:"description=Filter expression (find and delete),type=object"`
	Token      string          `json:"token,omitempty" jsonschema:"description=Bearer JWT when the server requires authentication"`
}

// Validate checks that the request is structurally complete.
func (r *Request) Validate() error {
	if r.Database == "" {
		return apierrors.MissingField("database")
	}
	if r.Collection == "" {
		return apierrors.MissingField("collection")
	}
	switch r.Operation {
	case "":
		return apierrors.MissingField("operation")
	case OpInsert:
		if isNull(r.Data) {
			return apierrors.MissingField("data")
		}
	case OpFind, OpDelete:
		if isNull(r.Query) {
			return apierrors.MissingField("query")
		}
	case OpDrop:
	default:
		return apierrors.BadRequest("unknown operation " + strconv.Quote(string(r.Operation)))
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// Response is the reply to one Request.
//
// Data and Count are only set on a successful find or delete.
type Response struct {
	Status  Status              `json:"status"`
	Message string              `json:"message"`
	Code    apierrors.ErrorCode `json:"code,omitempty" jsonschema:"description=Error class when status is error"`
	Details map[string]any      `json:"details,omitempty" jsonschema:"description=Error specifics such as the missing field or retry_after_ms"`
	Data    []docdb.Document    `json:"data,omitempty"`
	Count   int                 `json:"count,omitempty"`
}

// Success returns a success response.
func Success(message string) *Response {
	return &Response{Status: StatusSuccess, Message: message}
}

// Matched returns a success response carrying documents.
func Matched(message string, docs []docdb.Document) *Response {
	return &Response{Status: StatusSuccess, Message: message, Data: docs, Count: len(docs)}
}

// Failure returns an error response for err.
func Failure(err error) *Response {
	resp := &Response{Status: StatusError, Message: err.Error(), Code: apierrors.ErrInternal}
	if c, ok := asCoded(err); ok {
		resp.Code = c.Code()
		resp.Details = c.Details()
	}
	return resp
}

func asCoded(err error) (apierrors.Coded, bool) {
	var c apierrors.Coded
	ok := errors.As(err, &c)
	return c, ok
}
