// Package errs implements the error kind taxonomy of spec.md §7. Every fatal or
// classified error the system raises wraps one of these Kinds so that callers up to
// main() can decide exit codes, and the Sync Engine can decide retry vs. halt vs. skip
// without string-matching error text.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error per spec.md §7's exhaustive taxonomy.
type Kind int

const (
	// Configuration — fatal at bootstrap/start.
	InvalidSchema Kind = iota
	UnknownTable
	UnknownColumn
	UnknownSchema
	MissingRelationship
	AmbiguousForeignKey
	UnreachableNode
	CycleDetected

	// Privilege — fatal at start; SlotInUse during teardown is reported, not fatal.
	InsufficientPrivilege
	SlotInUse

	// Transient source — retried with bounded backoff; escalates to fatal after exhaustion.
	DatabaseConnectionLost
	ReplicationSlotGone

	// Indexer — retryable respects MAX_RETRIES/backoff bounds; fatal quarantines the batch.
	IndexerRetryable
	IndexerFatal

	// Broker — retried indefinitely.
	BrokerUnavailable

	// Data — per-document; reported and the document is skipped.
	UnsupportedJSONPath
	TransformRuleMissingColumn
)

func (k Kind) String() string {
	switch k {
	case InvalidSchema:
		return "InvalidSchema"
	case UnknownTable:
		return "UnknownTable"
	case UnknownColumn:
		return "UnknownColumn"
	case UnknownSchema:
		return "UnknownSchema"
	case MissingRelationship:
		return "MissingRelationship"
	case AmbiguousForeignKey:
		return "AmbiguousForeignKey"
	case UnreachableNode:
		return "UnreachableNode"
	case CycleDetected:
		return "CycleDetected"
	case InsufficientPrivilege:
		return "InsufficientPrivilege"
	case SlotInUse:
		return "SlotInUse"
	case DatabaseConnectionLost:
		return "DatabaseConnectionLost"
	case ReplicationSlotGone:
		return "ReplicationSlotGone"
	case IndexerRetryable:
		return "IndexerRetryable"
	case IndexerFatal:
		return "IndexerFatal"
	case BrokerUnavailable:
		return "BrokerUnavailable"
	case UnsupportedJSONPath:
		return "UnsupportedJSONPath"
	case TransformRuleMissingColumn:
		return "TransformRuleMissingColumn"
	default:
		return "Unknown"
	}
}

// Class is the broad propagation bucket a Kind falls into (spec.md §7's "Propagation
// policy").
type Class int

const (
	ClassConfiguration Class = iota
	ClassPrivilege
	ClassTransientSource
	ClassIndexer
	ClassBroker
	ClassData
)

func (k Kind) Class() Class {
	switch k {
	case InvalidSchema, UnknownTable, UnknownColumn, UnknownSchema,
		MissingRelationship, AmbiguousForeignKey, UnreachableNode, CycleDetected:
		return ClassConfiguration
	case InsufficientPrivilege, SlotInUse:
		return ClassPrivilege
	case DatabaseConnectionLost, ReplicationSlotGone:
		return ClassTransientSource
	case IndexerRetryable, IndexerFatal:
		return ClassIndexer
	case BrokerUnavailable:
		return ClassBroker
	case UnsupportedJSONPath, TransformRuleMissingColumn:
		return ClassData
	default:
		return ClassConfiguration
	}
}

// Retriable reports whether the engine should retry the operation that produced this
// Kind rather than halt or skip.
func (k Kind) Retriable() bool {
	switch k {
	case DatabaseConnectionLost, ReplicationSlotGone, IndexerRetryable, BrokerUnavailable:
		return true
	default:
		return false
	}
}

// Fatal reports whether this Kind should halt the process (after draining the current
// batch and persisting the checkpoint).
func (k Kind) Fatal() bool {
	switch k.Class() {
	case ClassConfiguration:
		return true
	case ClassPrivilege:
		return k != SlotInUse
	default:
		return false
	}
}

// Error wraps a Kind with a message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error carrying cause as its unwrap target.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts the Kind from err, if it (or something it wraps) is an *Error.
func As(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// ExitCode maps a Kind to the process exit code specified in spec.md §6.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := As(err)
	if !ok {
		return 1
	}
	switch kind {
	case InvalidSchema, UnknownTable, UnknownColumn, UnknownSchema,
		MissingRelationship, AmbiguousForeignKey, UnreachableNode, CycleDetected:
		return 2
	case InsufficientPrivilege:
		return 3
	default:
		return 1
	}
}
