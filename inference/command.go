package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/carbocation/pfx"
)

const stderrTail = 2048

// Command drives one external program per call. The program receives
// {"operation": ..., "request": ...} as JSON on stdin and answers with the
// JSON response of that operation on stdout.
type Command struct {
	Argv []string
}

func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("empty command")
	}
	return &Command{Argv: append([]string(nil), argv...)}, nil
}

type envelope struct {
	Operation string      `json:"operation"`
	Request   interface{} `json:"request"`
}

func (c *Command) call(ctx context.Context, operation string, req, resp interface{}) error {
	in, err := json.Marshal(envelope{Operation: operation, Request: req})
	if err != nil {
		return pfx.Err(err)
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > stderrTail {
			tail = tail[len(tail)-stderrTail:]
		}
		return pfx.Err(fmt.Errorf("%s %s: %v: %s", strings.Join(c.Argv, " "), operation, err, strings.TrimSpace(tail)))
	}

	if err := json.Unmarshal(stdout.Bytes(), resp); err != nil {
		return pfx.Err(fmt.Errorf("%s %s: decoding response: %v", strings.Join(c.Argv, " "), operation, err))
	}

	return nil
}

func (c *Command) Filter(ctx context.Context, req FilterRequest) (FilterResult, error) {
	var out FilterResult
	err := c.call(ctx, "filter", req, &out)
	return out, err
}

func (c *Command) LearnErrors(ctx context.Context, run string, strand Strand, files []string) ([]byte, error) {
	req := struct {
		Run    string   `json:"run"`
		Strand Strand   `json:"strand"`
		Files  []string `json:"files"`
	}{run, strand, files}

	var out struct {
		Model []byte `json:"model"`
	}
	if err := c.call(ctx, "learn-errors", req, &out); err != nil {
		return nil, err
	}
	if len(out.Model) == 0 {
		return nil, pfx.Err(fmt.Errorf("empty error model for run %s strand %s", run, strand))
	}
	return out.Model, nil
}

func (c *Command) Dereplicate(ctx context.Context, path string) ([]Unique, error) {
	req := struct {
		Path string `json:"path"`
	}{path}

	var out []Unique
	err := c.call(ctx, "dereplicate", req, &out)
	return out, err
}

func (c *Command) Denoise(ctx context.Context, req DenoiseRequest) ([]Denoised, error) {
	var out []Denoised
	err := c.call(ctx, "denoise", req, &out)
	return out, err
}

func (c *Command) MergePairs(ctx context.Context, req MergeRequest) ([]Unique, error) {
	var out []Unique
	err := c.call(ctx, "merge-pairs", req, &out)
	return out, err
}

func (c *Command) RemoveBimeras(ctx context.Context, req BimeraRequest) ([]string, error) {
	var out []string
	err := c.call(ctx, "remove-bimeras", req, &out)
	return out, err
}

func (c *Command) Classify(ctx context.Context, req ClassifyRequest) ([]Assignment, error) {
	var out []Assignment
	err := c.call(ctx, "classify", req, &out)
	return out, err
}
