package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/backmassage/ephysbatch/internal/config"
	"github.com/backmassage/ephysbatch/internal/ephys"
)

// Client runs analysis bridge subcommands. It is safe for concurrent use;
// every call is an independent subprocess.
type Client struct {
	Command string

	// Verbose tees bridge stderr to os.Stderr in real time.
	Verbose bool
}

// New returns a Client for the bridge executable named in cfg.
func New(cfg *config.Config) *Client {
	return &Client{Command: cfg.BridgeCommand, Verbose: cfg.Verbose}
}

// run executes one subcommand and returns its stdout. stdin may be nil.
func (c *Client) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if c.Verbose {
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		cmd.Stderr = &stderr
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if serr := structuredError(stdout.Bytes()); serr != nil {
		return nil, serr
	}
	if err != nil {
		return nil, ClassifyStderr(stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

// Version returns the bridge's self-reported version.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, nil, "version")
	if err != nil {
		return "", err
	}
	var v versionOutput
	if err := decode("version", out, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// Open checks that path is readable and loads its sweep table.
func (c *Client) Open(ctx context.Context, path string) (ephys.Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &ephys.Error{Stage: ephys.StageLoad, Kind: ephys.KindIO, Message: err.Error(), Err: err}
	}
	out, err := c.run(ctx, nil, "sweeps", "--nwb", path)
	if err != nil {
		return nil, ephys.AtStage(err, ephys.StageLoad)
	}
	var raw sweepTableOutput
	if err := decode("sweeps", out, &raw); err != nil {
		return nil, ephys.AtStage(err, ephys.StageLoad)
	}
	return &Dataset{
		client: c,
		path:   path,
		table:  convertSweepTable(&raw),
		sweeps: make(map[int]*ephys.Sweep),
	}, nil
}

// AnalyzeLongSquare sends the prepared set to the bridge. The bridge
// reloads the listed sweeps and replays the epoch selection and alignment
// recorded on set before running spike and long-square analysis.
func (c *Client) AnalyzeLongSquare(ctx context.Context, set *ephys.SweepSet, p ephys.AnalysisParams) (*ephys.LongSquareResult, error) {
	req, err := json.Marshal(buildRequest(set, p))
	if err != nil {
		return nil, err
	}
	out, err := c.run(ctx, req, "long-square", "--nwb", set.Path)
	if err != nil {
		return nil, err
	}
	var raw longSquareOutput
	if err := decode("long-square", out, &raw); err != nil {
		return nil, err
	}
	return convertLongSquare(&raw), nil
}

// Dataset is one NWB file opened through the bridge. Loaded sweeps are
// cached for the lifetime of the Dataset.
type Dataset struct {
	client *Client
	path   string
	table  ephys.SweepTable

	mu     sync.Mutex
	sweeps map[int]*ephys.Sweep
}

func (d *Dataset) Path() string { return d.path }

// SweepTable returns a copy of the table loaded by Open.
func (d *Dataset) SweepTable(context.Context) (ephys.SweepTable, error) {
	return append(ephys.SweepTable(nil), d.table...), nil
}

// Sweep loads one sweep's traces and epochs.
func (d *Dataset) Sweep(ctx context.Context, number int) (*ephys.Sweep, error) {
	d.mu.Lock()
	s, ok := d.sweeps[number]
	d.mu.Unlock()
	if ok {
		return s, nil
	}

	out, err := d.client.run(ctx, nil, "sweep", "--nwb", d.path, "--sweep", strconv.Itoa(number))
	if err != nil {
		return nil, err
	}
	var raw sweepOutput
	if err := decode("sweep", out, &raw); err != nil {
		return nil, err
	}
	s = convertSweep(&raw)
	if s.Number != number {
		return nil, ephys.Errorf(ephys.KindValue, "asked for sweep %d, bridge returned %d", number, s.Number)
	}

	d.mu.Lock()
	d.sweeps[number] = s
	d.mu.Unlock()
	return s, nil
}

// SweepQC returns the per-sweep QC metrics.
func (d *Dataset) SweepQC(ctx context.Context) ([]ephys.SweepQC, error) {
	out, err := d.client.run(ctx, nil, "sweep-qc", "--nwb", d.path)
	if err != nil {
		return nil, ephys.AtStage(err, ephys.StageSweepQC)
	}
	var raw sweepQCOutput
	if err := decode("sweep-qc", out, &raw); err != nil {
		return nil, ephys.AtStage(err, ephys.StageSweepQC)
	}
	return convertSweepQC(&raw), nil
}

// CellQC returns the cell QC features and the QC tags.
func (d *Dataset) CellQC(ctx context.Context) (ephys.CellQC, []string, error) {
	out, err := d.client.run(ctx, nil, "cell-qc", "--nwb", d.path)
	if err != nil {
		return ephys.CellQC{}, nil, ephys.AtStage(err, ephys.StageCellQC)
	}
	var raw cellQCOutput
	if err := decode("cell-qc", out, &raw); err != nil {
		return ephys.CellQC{}, nil, ephys.AtStage(err, ephys.StageCellQC)
	}
	return convertCellQC(&raw.Features), raw.Tags, nil
}

var (
	_ ephys.Loader   = (*Client)(nil)
	_ ephys.Analyzer = (*Client)(nil)
	_ ephys.Dataset  = (*Dataset)(nil)
)

// IsNotFound reports whether err means the bridge executable is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
