// Package tooling runs configured tools as external commands: the tool's
// input goes in as JSON on stdin, the result comes back on stdout as JSON
// or plain text.
package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	chat "github.com/lk2023060901/chat-bridge/internal/chat/types"
	"github.com/lk2023060901/chat-bridge/internal/conf"
	"github.com/lk2023060901/chat-bridge/internal/pkg/logger"
)

// DefaultTimeout bounds a tool run when the config does not.
const DefaultTimeout = 60 * time.Second

// maxStderrLen caps how much captured stderr rides along in an error.
const maxStderrLen = 512

// stdinPayload builds the flat object handed to a tool command: the tool
// name under "type" with the invocation's arguments spread alongside it.
// Non-object arguments ride under "input" since they have no keys to spread.
func stdinPayload(invocation chat.ContentBlock) map[string]any {
	payload := map[string]any{"type": invocation.ToolName}
	switch in := invocation.Input.(type) {
	case nil:
	case map[string]any:
		for k, v := range in {
			if k == "type" {
				continue
			}
			payload[k] = v
		}
	default:
		payload["input"] = in
	}
	return payload
}

// CommandExecutor maps tool names to argv vectors and executes invocations
// out-of-process.
type CommandExecutor struct {
	timeout time.Duration
	tools   map[string][]string
	logger  *logger.Logger
}

// NewCommandExecutor builds an executor from the tool definitions.
// Definitions without a command are skipped; they cannot be executed.
func NewCommandExecutor(cfg conf.ToolsConfig, log *logger.Logger) *CommandExecutor {
	if log == nil {
		log = logger.L()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tools := make(map[string][]string, len(cfg.Definitions))
	for _, def := range cfg.Definitions {
		if def.Name == "" || len(def.Command) == 0 {
			log.Warn("skipping tool definition without a command",
				zap.String("tool", def.Name),
			)
			continue
		}
		tools[def.Name] = def.Command
	}

	return &CommandExecutor{
		timeout: timeout,
		tools:   tools,
		logger:  log,
	}
}

// Execute runs the invocation's tool command. The decoded stdout is
// returned when it parses as JSON, the trimmed raw text otherwise.
func (e *CommandExecutor) Execute(ctx context.Context, invocation chat.ContentBlock) (any, error) {
	argv, ok := e.tools[invocation.ToolName]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", invocation.ToolName)
	}

	payload, err := json.Marshal(stdinPayload(invocation))
	if err != nil {
		return nil, fmt.Errorf("failed to encode input for tool %s: %w", invocation.ToolName, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	e.logger.Debug("tool command finished",
		zap.String("tool", invocation.ToolName),
		zap.String("invocation_id", invocation.ToolID),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err),
	)

	if err != nil {
		if ctxErr := runCtx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("tool %s aborted: %w", invocation.ToolName, ctxErr)
		}
		detail := truncate(strings.TrimSpace(stderr.String()), maxStderrLen)
		if detail != "" {
			return nil, fmt.Errorf("tool %s failed: %w: %s", invocation.ToolName, err, detail)
		}
		return nil, fmt.Errorf("tool %s failed: %w", invocation.ToolName, err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", nil
	}
	var decoded any
	if json.Unmarshal([]byte(out), &decoded) == nil {
		return decoded, nil
	}
	return out, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
