/*
Package postie is a command line email sender built around a small send
pipeline.

Postie is designed to cover the whole path from a message to the SMTP server:
  - Normalizing sender and recipient addresses
  - Running before-send middleware and hook commands
  - Rendering HTML bodies from templates
  - Retrying failed deliveries with a fixed delay
  - Sending named aliases with per-call overrides

# Configuration

Postie reads $HOME/.postie/config.yaml, written by "postie configure" or
"postie init". The configuration supports:
  - Environment variable expansion with ${VAR}
  - Include statements for sharing aliases between files
  - Message defaults applied to every send
  - Hooks that run as send middleware

# Usage

Basic usage:

	postie configure --host smtp.gmail.com --user me@gmail.com --pass app-password
	postie send --to team@example.com --subject "Hello" --text "Hi"
	postie trigger deploy --data version=1.4.2
	postie aliases
	postie test
*/
package postie

// Version is the current version of Postie
const Version = "1.0.0"

// BuildDate is set at build time
var BuildDate string

// GitCommit is set at build time
var GitCommit string
