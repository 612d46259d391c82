package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/CodexForgeBR/cull-engine/internal/parser"
	"github.com/CodexForgeBR/cull-engine/internal/ratelimit"
)

// DefaultLocalCommand is the on-device rating helper binary.
const DefaultLocalCommand = "apple-intelligence-cull"

// LocalRunner rates images with an on-device helper process. The helper
// receives {"prompt": ..., "images": [...]} on stdin and prints
// {"ratings": [...]} on stdout.
type LocalRunner struct {
	Command string
	Args    []string
}

type localRequest struct {
	Prompt string  `json:"prompt"`
	Images []Image `json:"images"`
}

// BuildArgs returns the helper's argument list.
func (r *LocalRunner) BuildArgs() []string {
	args := append([]string{}, r.Args...)
	return append(args, "--format", "json")
}

func (r *LocalRunner) command() string {
	if r.Command == "" {
		return DefaultLocalCommand
	}
	return r.Command
}

// SubmitGroup runs the helper once for the whole group.
func (r *LocalRunner) SubmitGroup(ctx context.Context, req GroupRequest) (GroupResult, error) {
	input, err := json.Marshal(localRequest{Prompt: req.Prompt, Images: req.Images})
	if err != nil {
		return GroupResult{}, NewPermanent(0, fmt.Errorf("encode local request: %w", err))
	}

	cmd := exec.CommandContext(ctx, r.command(), r.BuildArgs()...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// Throttling is reported on stderr regardless of exit status.
	if ratelimit.IsRateLimitMessage(stderr.String()) {
		return GroupResult{OK: false}, &Failure{Kind: RateLimited, Message: strings.TrimSpace(stderr.String()), Err: runErr}
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return GroupResult{OK: false}, NewTransient(0, fmt.Errorf("%s exited %d: %s", r.command(), exitErr.ExitCode(), strings.TrimSpace(stderr.String())))
		}
		return GroupResult{OK: false}, NewPermanent(0, fmt.Errorf("%s failed: %w", r.command(), runErr))
	}

	var reply struct {
		Ratings []Rating `json:"ratings"`
	}
	found, err := parser.DecodeJSON(stdout.String(), "ratings", &reply)
	if err != nil || !found {
		return GroupResult{OK: false}, NewTransient(0, fmt.Errorf("no ratings in %s output: %v", r.command(), err))
	}
	for _, rating := range reply.Ratings {
		if err := rating.Validate(); err != nil {
			return GroupResult{OK: false}, NewTransient(0, err)
		}
	}
	return GroupResult{OK: true, Ratings: reply.Ratings}, nil
}

// ProcessSingleImage rates one image through a single-image group.
func (r *LocalRunner) ProcessSingleImage(ctx context.Context, req SingleImageRequest) (Rating, error) {
	prompt := req.Prompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + prompt
	}
	res, err := r.SubmitGroup(ctx, GroupRequest{Images: []Image{req.Image}, Prompt: prompt})
	if err != nil {
		return Rating{}, err
	}
	for _, rating := range res.Ratings {
		if rating.ImageID == req.Image.ID {
			return rating, nil
		}
	}
	return Rating{}, NewTransient(0, fmt.Errorf("%s returned no rating for %s", r.command(), req.Image.ID))
}
