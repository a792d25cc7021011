// Package errors provides standardized error handling patterns for the media engine.
//
// # Overview
//
// Two orthogonal views are offered over the same error values:
//
//   - Classification (Transient, Invalid, Fatal) for callers that decide how to react.
//   - Result codes (OK, INVALID_PARAM, FAILED, MSG_NO_PROC, INVALID_STATE) reported at
//     the core boundary by pins, elements, the assembler and the pipeline.
//
// Pin and assembler operations never panic across the core boundary. They return an
// error that CodeOf maps onto the taxonomy. The core never retries; retry policy, if
// any, belongs to the calling element.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// WrapState builds an INVALID_STATE error for an operation attempted in the wrong
// lifecycle state:
//
//	return errors.WrapState(p.state.String(), "Pipeline", "AddElement", "state check")
//
// # The MSG_NO_PROC Sentinel
//
// ErrNoProc is not a true error. Element hooks return it to ask the base element to
// apply its default behavior:
//
//	func (e *MyElement) PreProcPipelineMsg(msg msgbus.Msg) error {
//	    if msg.Type != MsgMyThing {
//	        return errors.ErrNoProc
//	    }
//	    return e.handleMyThing(msg)
//	}
//
// # Integration with errors.As/Is
//
// All error types support standard library error inspection; Is, As and Join are
// re-exported so callers need a single import.
package errors
