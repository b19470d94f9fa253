package jobs

import (
	"fmt"

	"github.com/robfig/cron"

	"github.com/JaimeStill/recognition/pkg/envutil"
)

// Job reads rows with Query on Schedule and synchronizes them into Table.
// Schedule accepts a six-field cron expression (with seconds) or a
// descriptor such as "@hourly" or "@every 15m". ChunkSize of zero falls
// back to the master-data default.
type Job struct {
	Name      string `toml:"name" json:"name"`
	Table     string `toml:"table" json:"table"`
	Query     string `toml:"query" json:"-"`
	Schedule  string `toml:"schedule" json:"schedule"`
	ChunkSize int    `toml:"chunk_size" json:"chunk_size,omitempty"`
}

// Config holds the scheduled synchronization jobs.
type Config struct {
	Enabled bool  `toml:"enabled"`
	Jobs    []Job `toml:"jobs"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Enabled string
}

// Finalize applies environment variable overrides and validation.
func (c *Config) Finalize(env *Env) error {
	if env != nil {
		envutil.Bool(env.Enabled, &c.Enabled)
	}
	return c.validate()
}

// Merge overwrites Enabled and replaces the job list when overlay defines one.
func (c *Config) Merge(overlay *Config) {
	c.Enabled = overlay.Enabled
	if len(overlay.Jobs) > 0 {
		c.Jobs = overlay.Jobs
	}
}

func (c *Config) validate() error {
	names := make(map[string]struct{}, len(c.Jobs))
	for i, job := range c.Jobs {
		if job.Name == "" {
			return fmt.Errorf("jobs[%d]: name required", i)
		}
		if _, dup := names[job.Name]; dup {
			return fmt.Errorf("jobs[%d]: duplicate name %q", i, job.Name)
		}
		names[job.Name] = struct{}{}

		if job.Table == "" {
			return fmt.Errorf("job %s: table required", job.Name)
		}
		if job.Query == "" {
			return fmt.Errorf("job %s: query required", job.Name)
		}
		if job.ChunkSize < 0 {
			return fmt.Errorf("job %s: chunk_size must not be negative", job.Name)
		}
		if _, err := cron.Parse(job.Schedule); err != nil {
			return fmt.Errorf("job %s: invalid schedule %q: %w", job.Name, job.Schedule, err)
		}
	}
	return nil
}
