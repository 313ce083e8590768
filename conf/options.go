// Package conf holds the explicit options struct that carries every
// configuration knob named in spec §6. There are no environment
// variables in the core contract; callers populate Options directly or
// load it from an INI file the way the teacher's server/conf.Cfg loaded
// mysqld.cfg.
package conf

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// FlushPaceMode controls how the checkpointer paces its flush phase
// against concurrent writer activity (spec §4.7 step 2).
type FlushPaceMode int

const (
	// IdleOnly aborts the checkpoint on any observed writer activity.
	IdleOnly FlushPaceMode = iota
	// PauseIfActivity throttles but continues flushing.
	PauseIfActivity
	// NoPause never throttles; used on the shutdown path.
	NoPause
)

func (m FlushPaceMode) String() string {
	switch m {
	case IdleOnly:
		return "idle_only"
	case PauseIfActivity:
		return "pause_if_activity"
	case NoPause:
		return "no_pause"
	default:
		return "unknown"
	}
}

func parseFlushPaceMode(s string) (FlushPaceMode, error) {
	switch s {
	case "", "idle_only":
		return IdleOnly, nil
	case "pause_if_activity":
		return PauseIfActivity, nil
	case "no_pause":
		return NoPause, nil
	default:
		return IdleOnly, fmt.Errorf("conf: unknown flush_pace_mode %q", s)
	}
}

// RecoveryPrintProgress controls startup progress reporting (spec §7).
type RecoveryPrintProgress int

const (
	ProgressOff RecoveryPrintProgress = iota
	ProgressSummary
	ProgressFull
)

func parseRecoveryPrintProgress(s string) (RecoveryPrintProgress, error) {
	switch s {
	case "", "off":
		return ProgressOff, nil
	case "summary":
		return ProgressSummary, nil
	case "full":
		return ProgressFull, nil
	default:
		return ProgressOff, fmt.Errorf("conf: unknown recovery_print_progress %q", s)
	}
}

// Options is the explicit configuration struct threaded through the
// dispatcher and the recovery engine. It holds spec §6's enumerated
// fields plus the listen address, data directory, flush and checkpoint
// poll intervals, the compression switch, and the loaded INI file.
type Options struct {
	Raw *ini.File

	// BindAddress and Port are where the remote signal transport
	// listens for inbound connections from other nodes.
	BindAddress string
	Port        int

	DataDir string

	// LogFileThreshold bounds a single xlog file, in bytes: a write that
	// would cross it rolls the writer to the next numbered file. No
	// NEW_LOG record is written at the switch.
	LogFileThreshold int64
	// CheckpointFrequency is the number of bytes written since the last
	// checkpoint that triggers the next one.
	CheckpointFrequency int64
	// LogBufferSize bounds the writer's in-memory append buffer.
	LogBufferSize int
	// MinLogFilesToKeep is the minimum number of retired log files kept
	// around for debugging after they become eligible for deletion.
	MinLogFilesToKeep int
	// FlushPaceMode controls checkpoint flush pacing.
	FlushPaceMode FlushPaceMode
	// MaxOpenTables bounds the table open-pool.
	MaxOpenTables int
	// RecoveryPrintProgress controls startup progress reporting.
	RecoveryPrintProgress RecoveryPrintProgress

	// FlushInterval is how often the xlog writer syncs its buffer to
	// disk absent an explicit flush_up_to call.
	FlushInterval time.Duration
	// CheckpointIdleWait is the checkpointer's condition-variable poll
	// timeout (spec §5: "checkpointer idle wait up to 400 ms").
	CheckpointIdleWait time.Duration

	// Compression gates lz4 compression of xlog record payloads.
	Compression bool
}

// NewOptions returns an Options populated with the same defaults the
// teacher's NewCfg used for its own knobs, translated to this domain.
func NewOptions() *Options {
	return &Options{
		Raw:                    ini.Empty(),
		BindAddress:            "127.0.0.1",
		Port:                   1186,
		DataDir:                "./data",
		LogFileThreshold:       32 * 1024 * 1024,
		CheckpointFrequency:    8 * 1024 * 1024,
		LogBufferSize:          256,
		MinLogFilesToKeep:      2,
		FlushPaceMode:          IdleOnly,
		MaxOpenTables:          256,
		RecoveryPrintProgress:  ProgressSummary,
		FlushInterval:          1 * time.Second,
		CheckpointIdleWait:     400 * time.Millisecond,
		Compression:            false,
	}
}

// Load overlays o with values parsed from the INI file at path, following
// the teacher's Cfg.Load / parseMysqldCfg shape: a [kernel] section with
// one key per Options field.
func (o *Options) Load(path string) (*Options, error) {
	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("conf: load %s: %w", path, err)
	}
	o.Raw = iniFile

	sec := iniFile.Section("kernel")

	if v := sec.Key("bind_address").String(); v != "" {
		o.BindAddress = v
	}
	if v, err := sec.Key("port").Int(); err == nil && v != 0 {
		o.Port = v
	}
	if v := sec.Key("data_dir").String(); v != "" {
		o.DataDir = v
	}
	if v, err := sec.Key("log_file_threshold").Int64(); err == nil && v != 0 {
		o.LogFileThreshold = v
	}
	if v, err := sec.Key("checkpoint_frequency").Int64(); err == nil && v != 0 {
		o.CheckpointFrequency = v
	}
	if v, err := sec.Key("log_buffer_size").Int(); err == nil && v != 0 {
		o.LogBufferSize = v
	}
	if v, err := sec.Key("min_log_files_to_keep").Int(); err == nil && v != 0 {
		o.MinLogFilesToKeep = v
	}
	if v := sec.Key("flush_pace_mode").String(); v != "" {
		mode, err := parseFlushPaceMode(v)
		if err != nil {
			return nil, err
		}
		o.FlushPaceMode = mode
	}
	if v, err := sec.Key("max_open_tables").Int(); err == nil && v != 0 {
		o.MaxOpenTables = v
	}
	if v := sec.Key("recovery_print_progress").String(); v != "" {
		progress, err := parseRecoveryPrintProgress(v)
		if err != nil {
			return nil, err
		}
		o.RecoveryPrintProgress = progress
	}
	if v, err := sec.Key("flush_interval").Duration(); err == nil && v != 0 {
		o.FlushInterval = v
	}
	if v, err := sec.Key("checkpoint_idle_wait").Duration(); err == nil && v != 0 {
		o.CheckpointIdleWait = v
	}
	if v, err := sec.Key("compression").Bool(); err == nil {
		o.Compression = v
	}

	return o, nil
}
