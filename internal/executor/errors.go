package executor

import "errors"

// Stage failures. Each sentinel marks which pipeline stage aborted the
// execution; callers use errors.Is to distinguish them.
var (
	// ErrBuild: the transaction builder rejected the trade intent.
	ErrBuild = errors.New("build failed")

	// ErrKey: the secret key did not decode to a usable keypair.
	ErrKey = errors.New("invalid signing key")

	// ErrDecode: the unsigned transaction blob was malformed.
	ErrDecode = errors.New("transaction decode failed")

	// ErrSubmit: the submission endpoint rejected the signed transaction.
	ErrSubmit = errors.New("submission failed")

	// ErrConfirm: the transaction reached the chain and failed there.
	ErrConfirm = errors.New("transaction failed on chain")

	// ErrConfirmTimeout: no terminal status within the polling budget.
	// The transaction may still land later; the pipeline treats it as a
	// failure and never resumes it.
	ErrConfirmTimeout = errors.New("confirmation timed out")
)
