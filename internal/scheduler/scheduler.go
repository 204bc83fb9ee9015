// Package scheduler runs stored requests on a cron cadence. Schedules
// are written in plain language ("daily at 5pm", "every 30 minutes"),
// translated once to a cron spec, and persisted to the data dir so they
// survive restarts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Runner routes one request. Satisfied by *workflow.Engine.
type Runner interface {
	Run(ctx context.Context, input string) (summary string, err error)
}

// Job is one persisted scheduled request.
type Job struct {
	Name      string    `yaml:"name"`
	Schedule  string    `yaml:"schedule"` // as the user wrote it
	Spec      string    `yaml:"spec"`     // derived cron spec
	Request   string    `yaml:"request"`
	CreatedAt time.Time `yaml:"created_at"`
}

type runningJob struct {
	job   Job
	entry cron.EntryID
}

// Scheduler owns the cron runtime and the persisted job set.
type Scheduler struct {
	mu      sync.RWMutex
	jobs    map[string]*runningJob
	cron    *cron.Cron
	runner  Runner
	dataDir string
	logger  *slog.Logger
}

// New builds a Scheduler persisting under dataDir. An empty dataDir
// disables persistence.
func New(runner Runner, dataDir string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:    make(map[string]*runningJob),
		cron:    cron.New(),
		runner:  runner,
		dataDir: dataDir,
		logger:  logger.With("component", "scheduler"),
	}
}

// Load registers the persisted jobs without starting the cron runtime.
// Call it before mutating the job set so a persist does not drop jobs
// added in earlier sessions.
func (s *Scheduler) Load() error {
	jobs, err := s.load()
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := s.register(j); err != nil {
			s.logger.Warn("skipping persisted job", "job", j.Name, "error", err)
		}
	}
	return nil
}

// Start loads persisted jobs and begins firing them.
func (s *Scheduler) Start() error {
	if err := s.Load(); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts firing and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Add schedules a new job from a plain-language schedule and persists
// the job set.
func (s *Scheduler) Add(name, schedule, request string) (Job, error) {
	if name == "" {
		return Job{}, fmt.Errorf("job name is required")
	}
	if request == "" {
		return Job{}, fmt.Errorf("job request is required")
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return Job{}, err
	}
	job := Job{Name: name, Schedule: schedule, Spec: spec, Request: request, CreatedAt: time.Now().UTC()}

	s.mu.RLock()
	_, exists := s.jobs[name]
	s.mu.RUnlock()
	if exists {
		return Job{}, fmt.Errorf("job %q already exists", name)
	}
	if err := s.register(job); err != nil {
		return Job{}, err
	}
	return job, s.persist()
}

// Remove unschedules a job and persists the job set.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	rj, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %q not found", name)
	}
	s.cron.Remove(rj.entry)
	delete(s.jobs, name)
	s.mu.Unlock()
	return s.persist()
}

// List returns the jobs sorted by name.
func (s *Scheduler) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, rj := range s.jobs {
		out = append(out, rj.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) register(job Job) error {
	entry, err := s.cron.AddFunc(job.Spec, func() { s.fire(job) })
	if err != nil {
		return fmt.Errorf("scheduling job %q: %w", job.Name, err)
	}
	s.mu.Lock()
	s.jobs[job.Name] = &runningJob{job: job, entry: entry}
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) fire(job Job) {
	s.logger.Info("firing scheduled job", "job", job.Name, "request", job.Request)
	summary, err := s.runner.Run(context.Background(), job.Request)
	if err != nil {
		s.logger.Error("scheduled job failed", "job", job.Name, "error", err)
		return
	}
	s.logger.Info("scheduled job finished", "job", job.Name, "summary", summary)
}

func (s *Scheduler) persistPath() string {
	return filepath.Join(s.dataDir, "scheduler", "jobs.yaml")
}

func (s *Scheduler) persist() error {
	if s.dataDir == "" {
		return nil
	}
	jobs := s.List()
	if err := os.MkdirAll(filepath.Dir(s.persistPath()), 0700); err != nil {
		return fmt.Errorf("creating scheduler dir: %w", err)
	}
	data, err := yaml.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("marshaling jobs: %w", err)
	}
	return os.WriteFile(s.persistPath(), data, 0600)
}

func (s *Scheduler) load() ([]Job, error) {
	if s.dataDir == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.persistPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading jobs file: %w", err)
	}
	var jobs []Job
	if err := yaml.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parsing jobs file: %w", err)
	}
	return jobs, nil
}
