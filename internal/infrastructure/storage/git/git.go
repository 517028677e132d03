package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	recordSeparator = "\x1e"
	fieldSeparator  = "\x1f"
	logFormat       = "--format=" + "%x1e%H%x1f%cI%x1f%B%x1f"
)

// Author signs every commit.
type Author struct {
	Name  string
	Email string
}

func (a Author) String() string {
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// Commit is the part of a git commit the repository cares about.
type Commit struct {
	Hash    string
	Date    time.Time
	Message string
	Files   []string
}

// CommandError is returned when the git executable exits with an error.
type CommandError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Stderr))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func isExitCode(err error, code int) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr) && cmdErr.ExitCode == code
}

func stderrContains(err error, fragments ...string) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	output := cmdErr.Stderr + cmdErr.Stdout
	for _, fragment := range fragments {
		if strings.Contains(output, fragment) {
			return true
		}
	}
	return false
}

// Git runs the git executable inside one working directory.
type Git struct {
	path           string
	author         Author
	binary         string
	commandFactory func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// New returns a wrapper for the repository at path.
func New(path string, author Author) *Git {
	return &Git{
		path:           path,
		author:         author,
		binary:         "git",
		commandFactory: exec.CommandContext,
	}
}

// Path returns the working directory.
func (g *Git) Path() string {
	return g.path
}

func (g *Git) run(ctx context.Context, env []string, args ...string) ([]byte, error) {
	fullArgs := append([]string{"-c", "core.quotepath=off"}, args...)
	cmd := g.commandFactory(ctx, g.binary, fullArgs...)
	cmd.Dir = g.path
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cmdErr := &CommandError{
			Args:     args,
			ExitCode: -1,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cmdErr.ExitCode = exitErr.ExitCode()
		}
		return nil, cmdErr
	}

	return stdout.Bytes(), nil
}

// Initialize creates the working directory and the repository when missing.
func (g *Git) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(g.path, 0o755); err != nil {
		return fmt.Errorf("create repository directory: %w", err)
	}

	if _, err := os.Stat(filepath.Join(g.path, ".git")); errors.Is(err, os.ErrNotExist) {
		if _, err := g.run(ctx, nil, "init", "--quiet"); err != nil {
			return fmt.Errorf("init repository: %w", err)
		}
	}

	settings := [][2]string{
		{"core.autocrlf", "false"},
		{"push.default", "current"},
	}
	if g.author.Name != "" {
		settings = append(settings, [2]string{"user.name", g.author.Name})
	}
	if g.author.Email != "" {
		settings = append(settings, [2]string{"user.email", g.author.Email})
	}
	for _, s := range settings {
		if _, err := g.run(ctx, nil, "config", "--local", s[0], s[1]); err != nil {
			return fmt.Errorf("configure %s: %w", s[0], err)
		}
	}

	return nil
}

// HasCommits reports whether HEAD points to a commit.
func (g *Git) HasCommits(ctx context.Context) (bool, error) {
	_, err := g.run(ctx, nil, "rev-parse", "--verify", "--quiet", "HEAD")
	if err == nil {
		return true, nil
	}
	if isExitCode(err, 1) {
		return false, nil
	}
	return false, err
}

// LiteralPathspec makes git match path byte for byte, without glob or magic characters.
func LiteralPathspec(path string) string {
	return ":(literal)" + path
}

// ListFiles returns the paths in the index matching the pathspecs.
func (g *Git) ListFiles(ctx context.Context, pathspecs ...string) ([]string, error) {
	args := append([]string{"ls-files", "-z", "--"}, pathspecs...)
	out, err := g.run(ctx, nil, args...)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, f := range strings.Split(string(out), "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

func (g *Git) Add(ctx context.Context, path string) error {
	_, err := g.run(ctx, nil, "add", "--", path)
	return err
}

// HasStagedChanges reports whether the index differs from HEAD for path.
func (g *Git) HasStagedChanges(ctx context.Context, path string) (bool, error) {
	_, err := g.run(ctx, nil, "diff", "--cached", "--quiet", "--", path)
	if err == nil {
		return false, nil
	}
	if isExitCode(err, 1) {
		return true, nil
	}
	return false, err
}

// Commit records the index with the given date as both author and committer date,
// and returns the new commit hash.
func (g *Git) Commit(ctx context.Context, message string, date time.Time) (string, error) {
	gitDate := strconv.FormatInt(date.Unix(), 10) + " +0000"
	env := []string{
		"GIT_AUTHOR_DATE=" + gitDate,
		"GIT_COMMITTER_DATE=" + gitDate,
	}
	args := []string{"commit", "--quiet", "--no-verify", "--message", message}
	if g.author.Name != "" && g.author.Email != "" {
		args = append(args, "--author", g.author.String())
		env = append(env,
			"GIT_COMMITTER_NAME="+g.author.Name,
			"GIT_COMMITTER_EMAIL="+g.author.Email,
		)
	}

	if _, err := g.run(ctx, env, args...); err != nil {
		return "", err
	}

	return g.RevParse(ctx, "HEAD")
}

func (g *Git) RevParse(ctx context.Context, rev string) (string, error) {
	out, err := g.run(ctx, nil, "rev-parse", "--verify", rev)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Log returns commits in git log order (newest first), each with the files it touched.
func (g *Git) Log(ctx context.Context, args ...string) ([]Commit, error) {
	fullArgs := append([]string{"log", logFormat, "--name-only"}, args...)
	out, err := g.run(ctx, nil, fullArgs...)
	if err != nil {
		return nil, err
	}
	return parseLog(string(out))
}

func parseLog(out string) ([]Commit, error) {
	var commits []Commit
	for _, chunk := range strings.Split(out, recordSeparator) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}

		parts := strings.SplitN(chunk, fieldSeparator, 4)
		if len(parts) < 3 {
			return nil, fmt.Errorf("parse git log: malformed entry %q", chunk)
		}

		date, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("parse commit date: %w", err)
		}

		c := Commit{
			Hash:    strings.TrimSpace(parts[0]),
			Date:    date,
			Message: strings.TrimSpace(parts[2]),
		}
		if len(parts) == 4 {
			for _, line := range strings.Split(parts[3], "\n") {
				if line = strings.TrimSpace(line); line != "" {
					c.Files = append(c.Files, line)
				}
			}
		}
		commits = append(commits, c)
	}
	return commits, nil
}

// Show returns the raw bytes of path at revision rev.
func (g *Git) Show(ctx context.Context, rev, path string) ([]byte, error) {
	out, err := g.run(ctx, nil, "show", rev+":"+path)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// Restore checks out path from source into the working tree, leaving the index alone.
func (g *Git) Restore(ctx context.Context, path, source string) error {
	_, err := g.run(ctx, nil, "restore", "--source="+source, "--worktree", "--", path)
	return err
}

// Unstage drops path from the index and resets the working tree copy to HEAD.
// A path absent from HEAD is removed from the index only.
func (g *Git) Unstage(ctx context.Context, path string, inHead bool) error {
	if !inHead {
		_, err := g.run(ctx, nil, "rm", "--cached", "--quiet", "--ignore-unmatch", "--", path)
		return err
	}
	_, err := g.run(ctx, nil, "restore", "--source=HEAD", "--staged", "--worktree", "--", path)
	return err
}

// Push publishes the current branch to its configured remote.
func (g *Git) Push(ctx context.Context) error {
	_, err := g.run(ctx, nil, "push", "--quiet")
	return err
}
