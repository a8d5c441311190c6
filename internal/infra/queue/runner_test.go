package queue

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"discord-render-bot/internal/domain"
	"discord-render-bot/internal/domain/model"
	"discord-render-bot/internal/domain/ports/adapter"
	"discord-render-bot/internal/infra/workflow"

	"github.com/rs/zerolog"
)

// ---- in-memory fakes ----

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{jobs: map[string]*model.Job{}} }

func (r *memJobRepo) Insert(_ context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.Status = model.JobStatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobRepo) FindByID(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) SetRunning(_ context.Context, id, promptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	j.Status = model.JobStatusRunning
	j.BackendPromptID = promptID
	j.StartedAt = &now
	return nil
}

func (r *memJobRepo) SetCompleted(_ context.Context, id string, filenames []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	j.Status = model.JobStatusCompleted
	if filenames == nil {
		filenames = []string{}
	}
	j.OutputImages = filenames
	j.CompletedAt = &now
	return nil
}

func (r *memJobRepo) SetFailed(_ context.Context, id, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	j.Status = model.JobStatusFailed
	j.ErrorMessage = message
	j.CompletedAt = &now
	return nil
}

func (r *memJobRepo) CountQueuedBefore(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	self, ok := r.jobs[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	n := 0
	for _, j := range r.jobs {
		if j.Status == model.JobStatusQueued && j.CreatedAt.Before(self.CreatedAt) {
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) ListQueued(_ context.Context) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if j.Status == model.JobStatusQueued {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memJobRepo) status(id string) model.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		return j.Status
	}
	return ""
}

type memUpscaleRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.UpscaleJob
}

func newMemUpscaleRepo() *memUpscaleRepo { return &memUpscaleRepo{jobs: map[string]*model.UpscaleJob{}} }

func (r *memUpscaleRepo) Insert(_ context.Context, job *model.UpscaleJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.Status = model.JobStatusQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memUpscaleRepo) FindByID(_ context.Context, id string) (*model.UpscaleJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memUpscaleRepo) SetRunning(_ context.Context, id, promptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	j.Status = model.JobStatusRunning
	j.BackendPromptID = promptID
	j.StartedAt = &now
	return nil
}

func (r *memUpscaleRepo) SetCompleted(_ context.Context, id string, filenames []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	j.Status = model.JobStatusCompleted
	j.OutputImages = filenames
	j.CompletedAt = &now
	return nil
}

func (r *memUpscaleRepo) SetFailed(_ context.Context, id, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	j.Status = model.JobStatusFailed
	j.ErrorMessage = message
	j.CompletedAt = &now
	return nil
}

func (r *memUpscaleRepo) ListQueued(_ context.Context) ([]*model.UpscaleJob, error) {
	return nil, nil
}

type fakeRenderer struct {
	adapter.RendererAdapter

	mu          sync.Mutex
	submits     []string // job model names in submit order
	active      int
	maxActive   int
	neverDone   bool
	submitErr   error
	historyHits int
}

func (f *fakeRenderer) Submit(_ context.Context, graph adapter.Graph) (string, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	node, _ := graph["152"].(map[string]any)
	inputs, _ := node["inputs"].(map[string]any)
	name, _ := inputs["ckpt_name"].(string)
	f.submits = append(f.submits, name)
	err := f.submitErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "prompt-" + name, nil
}

func (f *fakeRenderer) History(_ context.Context, promptID string) (*adapter.HistoryEntry, error) {
	f.mu.Lock()
	f.historyHits++
	never := f.neverDone
	f.mu.Unlock()
	if never {
		return nil, nil
	}
	return &adapter.HistoryEntry{
		Completed: true,
		Outputs: map[string][]adapter.HistoryImage{
			"301": {{Filename: "out.png", Subfolder: "", Type: "output"}},
		},
	}, nil
}

func (f *fakeRenderer) FetchImage(context.Context, string, string, string) ([]byte, error) {
	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return []byte("png"), nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	results    []string
	failures   []string
	ephemerals []string
}

func (n *fakeNotifier) PostResult(_ context.Context, _, _, jobID string, _ adapter.JobSummary, _ []adapter.ResultFile, _ bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, jobID)
	return nil
}

func (n *fakeNotifier) PostUpscaleResult(_ context.Context, _, _, jobID string, _ []adapter.ResultFile) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, jobID)
	return nil
}

func (n *fakeNotifier) PostFailure(_ context.Context, _, _, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, reason)
	return nil
}

func (n *fakeNotifier) UpdateEphemeral(_ context.Context, token, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ephemerals = append(n.ephemerals, token+"|"+content)
	return nil
}

func (n *fakeNotifier) resultCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results)
}

func (n *fakeNotifier) failureCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.failures)
}

// ---- helpers ----

const repoTemplates = "../../../workflows"

func queuedJob(id, modelName string) *model.Job {
	return &model.Job{
		ID:              id,
		RequesterID:     "user-1",
		OriginScopeID:   "guild-1",
		OriginChannelID: "chan-1",
		Model:           modelName,
		Sampler:         "dpmpp_2m_sde",
		Scheduler:       "karras",
		Steps:           28,
		CFG:             5,
		Seed:            42,
		Size:            model.SizePortrait,
		PositivePrompt:  "a cat",
	}
}

func newTestRunner(jobs *memJobRepo, rend *fakeRenderer, notifier *fakeNotifier, binderDir string) *Runner {
	logger := zerolog.Nop()
	binder := workflow.NewBinder(binderDir, workflow.UpscaleSimple)
	r := NewRunner(jobs, newMemUpscaleRepo(), binder, rend, notifier, 2*time.Second, false, &logger)
	r.pollInterval = 5 * time.Millisecond
	return r
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

// ---- tests ----

func TestRunner_HappyPath(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := newMemJobRepo()
	rend := &fakeRenderer{}
	notifier := &fakeNotifier{}
	r := newTestRunner(jobs, rend, notifier, repoTemplates)

	job := queuedJob("job-1", "M")
	jobs.Insert(ctx, job)

	go r.Run(ctx)
	r.Enqueue("job-1", KindGeneration, "tok-1")

	waitFor(t, func() bool { return jobs.status("job-1") == model.JobStatusCompleted })

	got, _ := jobs.FindByID(ctx, "job-1")
	if got.BackendPromptID != "prompt-M" {
		t.Fatalf("backend prompt id = %q", got.BackendPromptID)
	}
	if len(got.OutputImages) != 1 || got.OutputImages[0] != "out.png" {
		t.Fatalf("output images = %v", got.OutputImages)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatalf("timestamps not stamped")
	}

	waitFor(t, func() bool { return notifier.resultCount() == 1 })
}

func TestRunner_FIFOAndSingleSlot(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := newMemJobRepo()
	rend := &fakeRenderer{}
	notifier := &fakeNotifier{}
	r := newTestRunner(jobs, rend, notifier, repoTemplates)

	names := []string{"first", "second", "third"}
	for i, name := range names {
		job := queuedJob("job-"+name, name)
		job.CreatedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
		jobs.Insert(ctx, job)
	}

	go r.Run(ctx)
	for _, name := range names {
		r.Enqueue("job-"+name, KindGeneration, "")
	}

	waitFor(t, func() bool { return notifier.resultCount() == 3 })

	rend.mu.Lock()
	defer rend.mu.Unlock()
	if len(rend.submits) != 3 {
		t.Fatalf("submits = %v", rend.submits)
	}
	for i, name := range names {
		if rend.submits[i] != name {
			t.Fatalf("FIFO violated: submits = %v", rend.submits)
		}
	}
	if rend.maxActive > 1 {
		t.Fatalf("runner interleaved jobs: max active = %d", rend.maxActive)
	}
}

func TestRunner_BindFailureMarksFailed(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := newMemJobRepo()
	rend := &fakeRenderer{}
	notifier := &fakeNotifier{}
	// An empty template dir makes every bind fail.
	r := newTestRunner(jobs, rend, notifier, t.TempDir())

	jobs.Insert(ctx, queuedJob("job-1", "M"))
	go r.Run(ctx)
	r.Enqueue("job-1", KindGeneration, "tok")

	waitFor(t, func() bool { return jobs.status("job-1") == model.JobStatusFailed })

	got, _ := jobs.FindByID(ctx, "job-1")
	if !strings.Contains(got.ErrorMessage, "bind failed") {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
	waitFor(t, func() bool { return notifier.failureCount() == 1 })

	rend.mu.Lock()
	submits := len(rend.submits)
	rend.mu.Unlock()
	if submits != 0 {
		t.Fatalf("nothing may be submitted after bind failure")
	}
}

func TestRunner_TimeoutMarksFailed(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := newMemJobRepo()
	rend := &fakeRenderer{neverDone: true}
	notifier := &fakeNotifier{}
	r := newTestRunner(jobs, rend, notifier, repoTemplates)
	r.deadline = 50 * time.Millisecond

	jobs.Insert(ctx, queuedJob("job-1", "M"))
	go r.Run(ctx)
	r.Enqueue("job-1", KindGeneration, "")

	waitFor(t, func() bool { return jobs.status("job-1") == model.JobStatusFailed })

	got, _ := jobs.FindByID(ctx, "job-1")
	if !strings.Contains(got.ErrorMessage, "prompt-M") {
		t.Fatalf("timeout message must name the backend prompt id, got %q", got.ErrorMessage)
	}

	// The runner advances to the next job after the timeout.
	jobs.Insert(ctx, queuedJob("job-2", "N"))
	rend.mu.Lock()
	rend.neverDone = false
	rend.mu.Unlock()
	r.Enqueue("job-2", KindGeneration, "")
	waitFor(t, func() bool { return jobs.status("job-2") == model.JobStatusCompleted })
}

func TestRunner_MissingRowDropped(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := newMemJobRepo()
	rend := &fakeRenderer{}
	notifier := &fakeNotifier{}
	r := newTestRunner(jobs, rend, notifier, repoTemplates)

	go r.Run(ctx)
	r.Enqueue("ghost", KindGeneration, "")

	// A real job behind the ghost still runs.
	jobs.Insert(ctx, queuedJob("job-1", "M"))
	r.Enqueue("job-1", KindGeneration, "")
	waitFor(t, func() bool { return jobs.status("job-1") == model.JobStatusCompleted })
}

func TestRunner_RecoverQueuedOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := newMemJobRepo()
	rend := &fakeRenderer{}
	notifier := &fakeNotifier{}
	r := newTestRunner(jobs, rend, notifier, repoTemplates)

	base := time.Now().Add(-time.Minute)
	for i, name := range []string{"oldest", "middle", "newest"} {
		job := queuedJob("job-"+name, name)
		job.CreatedAt = base.Add(time.Duration(i) * time.Second)
		jobs.Insert(ctx, job)
	}

	if err := r.RecoverQueued(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	go r.Run(ctx)
	// RecoverQueued armed the wake-up; nudge in case Run started late.
	r.Enqueue("ghost", KindGeneration, "")

	waitFor(t, func() bool { return notifier.resultCount() == 3 })

	rend.mu.Lock()
	defer rend.mu.Unlock()
	want := []string{"oldest", "middle", "newest"}
	for i := range want {
		if rend.submits[i] != want[i] {
			t.Fatalf("recovery order wrong: %v", rend.submits)
		}
	}
}

func TestFIFO_TokenTakeSemantics(t *testing.T) {
	t.Parallel()

	q := newFIFO()
	q.push("job-1", KindGeneration, "tok")

	if got := q.takeToken("job-1"); got != "tok" {
		t.Fatalf("first take = %q", got)
	}
	if got := q.takeToken("job-1"); got != "" {
		t.Fatalf("second take must see nothing, got %q", got)
	}
}

func TestFIFO_PopRespectsRunningFlag(t *testing.T) {
	t.Parallel()

	q := newFIFO()
	q.push("a", KindGeneration, "")
	q.push("b", KindGeneration, "")

	head, ok := q.pop()
	if !ok || head.jobID != "a" {
		t.Fatalf("pop = %+v, %v", head, ok)
	}
	// Busy: a second pop yields nothing until finish.
	if _, ok := q.pop(); ok {
		t.Fatalf("pop must refuse while running")
	}
	q.finish()
	head, ok = q.pop()
	if !ok || head.jobID != "b" {
		t.Fatalf("pop after finish = %+v, %v", head, ok)
	}
}
