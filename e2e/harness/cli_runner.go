package harness

import (
	"bytes"
	"context"
	"time"

	"github.com/artpar/kith/internal/cli"
)

// CLIResult holds CLI execution results.
type CLIResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// CLIRunner executes CLI commands against the harness config.
type CLIRunner struct {
	harness *E2EHarness
}

// Run executes a CLI command with the given arguments.
func (r *CLIRunner) Run(args ...string) (*CLIResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.harness.timeout)
	defer cancel()

	start := time.Now()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	cmd := cli.NewRootCommand("test")
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", r.harness.configPath}, args...))

	err := cmd.ExecuteContext(ctx)

	result := &CLIResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		result.ExitCode = 1
	}

	return result, err
}

// Like likes a post.
func (r *CLIRunner) Like(id string, opts ...string) (*CLIResult, error) {
	return r.Run(append([]string{"like", id}, opts...)...)
}

// Unlike removes a like.
func (r *CLIRunner) Unlike(id string, opts ...string) (*CLIResult, error) {
	return r.Run(append([]string{"unlike", id}, opts...)...)
}

// Connect sends a connection request.
func (r *CLIRunner) Connect(username string, opts ...string) (*CLIResult, error) {
	return r.Run(append([]string{"connect", username}, opts...)...)
}

// Unfriend removes a connection or withdraws a request.
func (r *CLIRunner) Unfriend(username string, opts ...string) (*CLIResult, error) {
	return r.Run(append([]string{"unfriend", username}, opts...)...)
}

// Accept accepts an incoming request.
func (r *CLIRunner) Accept(username string, opts ...string) (*CLIResult, error) {
	return r.Run(append([]string{"accept", username}, opts...)...)
}

// Search runs a people search.
func (r *CLIRunner) Search(query string, opts ...string) (*CLIResult, error) {
	return r.Run(append([]string{"search", query}, opts...)...)
}

// Journal lists journal entries.
func (r *CLIRunner) Journal(opts ...string) (*CLIResult, error) {
	return r.Run(append([]string{"journal"}, opts...)...)
}
