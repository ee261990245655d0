package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/molcalc/chemjobs/internal/domain/cluster"
	"github.com/molcalc/chemjobs/internal/domain/model"
	"github.com/molcalc/chemjobs/internal/observability/notify"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testEpoch }

// memJobRepo applies updates with the same state-machine rules as the Postgres repository.
type memJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	updates   map[string]int
	updateErr map[string]error
	listErr   error
}

func newMemJobRepo(jobs ...*model.Job) *memJobRepo {
	r := &memJobRepo{
		jobs:      map[string]*model.Job{},
		updates:   map[string]int{},
		updateErr: map[string]error{},
	}
	for _, j := range jobs {
		cp := *j
		r.jobs[j.ID] = &cp
	}
	return r
}

func (r *memJobRepo) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := testEpoch
	j := &model.Job{
		ID: req.ID, UserID: req.UserID, Name: req.Name, Status: model.JobStatusSubmitted,
		Parameters: req.Parameters, Created: now, Submitted: &now, UpdatedAt: now,
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	r.jobs[j.ID] = j
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) ListByStatus(_ context.Context, statuses []model.JobStatus) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*model.Job
	for _, j := range r.jobs {
		for _, st := range statuses {
			if j.Status == st {
				cp := *j
				out = append(out, &cp)
				break
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (r *memJobRepo) ListByOwner(context.Context, model.JobListOptions) ([]*model.Job, error) {
	return nil, nil
}

func (r *memJobRepo) CountByOwner(context.Context, model.JobListOptions) (int, error) {
	return 0, nil
}

func (r *memJobRepo) Update(_ context.Context, id string, upd model.JobUpdate) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[id]++
	if err := r.updateErr[id]; err != nil {
		return nil, err
	}
	next, err := upd.ApplyTo(r.jobs[id])
	if err != nil {
		return nil, err
	}
	r.jobs[id] = next
	cp := *next
	return &cp, nil
}

func (r *memJobRepo) get(id string) model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.jobs[id]
}

func (r *memJobRepo) updateCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[id]
}

// fakeGateway records calls and answers from per-action fields.
type fakeGateway struct {
	mu sync.Mutex

	checkReport cluster.CheckReport
	checkErr    error
	checkCalls  int
	lastCheck   cluster.CheckRequest

	uploadCodes   map[string]int // by file type
	uploadErr     map[string]error
	uploadCalls   []cluster.UploadRequest
	uploadBlock   chan struct{}
	uploadStarted chan string

	cleanAck   cluster.Ack
	cleanErr   error
	cleanCalls int

	cancelAck   cluster.Ack
	cancelErr   error
	cancelCalls int

	submitAck   cluster.Ack
	submitErr   error
	submitCalls []cluster.SubmitRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		uploadCodes: map[string]int{"zip": 204, "json": 204},
		uploadErr:   map[string]error{},
		cleanAck:    cluster.Ack{Status: cluster.StatusSuccess},
		cancelAck:   cluster.Ack{Status: cluster.StatusSuccess},
		submitAck:   cluster.Ack{Status: cluster.StatusSuccess},
	}
}

func (g *fakeGateway) Submit(_ context.Context, req cluster.SubmitRequest) (cluster.Ack, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls = append(g.submitCalls, req)
	return g.submitAck, g.submitErr
}

func (g *fakeGateway) Cancel(context.Context, cluster.CancelRequest) (cluster.Ack, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls++
	return g.cancelAck, g.cancelErr
}

func (g *fakeGateway) Check(_ context.Context, req cluster.CheckRequest) (cluster.CheckReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkCalls++
	g.lastCheck = req
	return g.checkReport, g.checkErr
}

func (g *fakeGateway) Upload(ctx context.Context, req cluster.UploadRequest) (cluster.UploadResult, error) {
	g.mu.Lock()
	g.uploadCalls = append(g.uploadCalls, req)
	block, started := g.uploadBlock, g.uploadStarted
	code, err := g.uploadCodes[req.FileType], g.uploadErr[req.FileType]
	g.mu.Unlock()

	if started != nil {
		started <- req.FileType
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return cluster.UploadResult{}, ctx.Err()
		}
	}
	return cluster.UploadResult{StatusCode: code}, err
}

func (g *fakeGateway) Clean(context.Context, cluster.CleanRequest) (cluster.Ack, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cleanCalls++
	return g.cleanAck, g.cleanErr
}

func (g *fakeGateway) uploads() []cluster.UploadRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]cluster.UploadRequest(nil), g.uploadCalls...)
}

// fakeArtifacts mints deterministic credentials.
type fakeArtifacts struct {
	mu       sync.Mutex
	mintErr  error
	requests []model.UploadCredentialRequest
	gets     []string
}

func (a *fakeArtifacts) MintUploadCredential(_ context.Context, req model.UploadCredentialRequest) (*model.UploadCredential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.mintErr != nil {
		return nil, a.mintErr
	}
	return &model.UploadCredential{
		URL:    "https://chem-results.s3.amazonaws.com",
		Fields: map[string]string{"key": req.Path},
	}, nil
}

func (a *fakeArtifacts) MintDownloadURL(_ context.Context, path string, _ time.Duration) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gets = append(a.gets, path)
	return "https://chem-results.s3.amazonaws.com/" + path, nil
}

// captureNotifier records alerts.
type captureNotifier struct {
	mu       sync.Mutex
	payloads []notify.JobFailurePayload
}

func (n *captureNotifier) NotifyJobFailure(_ context.Context, p notify.JobFailurePayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
}

func (n *captureNotifier) scopes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.payloads))
	for _, p := range n.payloads {
		out = append(out, p.Scope)
	}
	sort.Strings(out)
	return out
}

// countingSink counts metric names.
type countingSink struct {
	mu     sync.Mutex
	counts map[string]int
	tags   map[string][]map[string]string
	gauges map[string]float64
}

func newCountingSink() *countingSink {
	return &countingSink{counts: map[string]int{}, tags: map[string][]map[string]string{}, gauges: map[string]float64{}}
}

func (s *countingSink) Count(name string, value int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name] += int(value)
	s.tags[name] = append(s.tags[name], tags)
}

func (s *countingSink) Gauge(name string, value float64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] = value
}

func (s *countingSink) Timing(string, time.Duration, map[string]string) {}

func (s *countingSink) results(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, t := range s.tags[name] {
		out = append(out, t["result"])
	}
	sort.Strings(out)
	return out
}

func newJob(id string, status model.JobStatus) *model.Job {
	return &model.Job{
		ID:        id,
		UserID:    "chemist@example.org",
		Name:      "benzene-opt",
		Status:    status,
		Created:   testEpoch.Add(-24 * time.Hour),
		UpdatedAt: testEpoch.Add(-24 * time.Hour),
	}
}

func ts(d time.Duration) *time.Time {
	t := testEpoch.Add(d)
	return &t
}
