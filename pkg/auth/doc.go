// Package auth provides pluggable inbound authentication for the
// quillgate server.
//
// Authentication uses a chain-of-responsibility pattern with
// three-outcome voting: each authenticator returns Accept (identity
// established), Reject (credentials present but invalid), or Abstain
// (cannot handle this credential type). A configurable default decides
// when every authenticator abstains.
//
// Auth is HTTP middleware, decoupled from the gateway. Outbound
// provider credentials are a separate concern; this package only
// guards who may call the quillgate API itself.
package auth
