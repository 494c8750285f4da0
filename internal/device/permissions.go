package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/location-cli/internal/model"
)

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Permissions holds the capabilities the user has granted.
type Permissions struct {
	mu      sync.Mutex
	granted map[model.Capability]bool
	prompt  Prompter
}

// NewPermissions creates a permission store with the given capabilities
// already granted. prompt may be nil, in which case missing capabilities are
// denied without asking.
func NewPermissions(prompt Prompter, granted ...model.Capability) *Permissions {
	p := &Permissions{granted: make(map[model.Capability]bool), prompt: prompt}
	for _, c := range granted {
		p.granted[c] = true
	}
	return p
}

// Granted reports whether c has been granted.
func (p *Permissions) Granted(c model.Capability) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted[c]
}

// Grant records c as granted.
func (p *Permissions) Grant(c model.Capability) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted[c] = true
}

// Revoke withdraws c.
func (p *Permissions) Revoke(c model.Capability) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.granted, c)
}

// EnsureGranted returns true if c is granted, prompting for it otherwise.
func (p *Permissions) EnsureGranted(ctx context.Context, c model.Capability) (bool, error) {
	if p.Granted(c) {
		return true, nil
	}
	if p.prompt == nil {
		return false, nil
	}
	ok, err := p.prompt.Confirm(ctx, fmt.Sprintf("Allow this app to access %s?", strings.ReplaceAll(string(c), "_", " ")))
	if err != nil {
		return false, eris.Wrap(err, "device: permission prompt")
	}
	if ok {
		p.Grant(c)
	}
	return ok, nil
}

// TerminalPrompt reads y/N answers from a line-oriented reader.
type TerminalPrompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalPrompt prompts on out and reads answers from in.
func NewTerminalPrompt(in io.Reader, out io.Writer) *TerminalPrompt {
	return &TerminalPrompt{in: bufio.NewReader(in), out: out}
}

// Confirm implements Prompter. Anything other than y/yes is a denial.
func (t *TerminalPrompt) Confirm(ctx context.Context, question string) (bool, error) {
	if _, err := fmt.Fprintf(t.out, "%s [y/N]: ", question); err != nil {
		return false, err
	}

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.err != io.EOF {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
