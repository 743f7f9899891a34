package rules

import (
	"context"
	"io/ioutil"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
	"github.com/yurykabanov/jfrkeeper/pkg/worker"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}

// region schedulerMock
type schedulerMock struct {
	mock.Mock
}

func (m *schedulerMock) ScheduleJob(key domain.JobKey, initialDelay, interval time.Duration, misfire domain.MisfirePolicy, job domain.Job) error {
	args := m.Called(key, initialDelay, interval, misfire, job)
	return args.Error(0)
}

func (m *schedulerMock) DeleteJob(key domain.JobKey) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *schedulerMock) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// endregion

// region memRules
type memRules struct {
	mu     sync.Mutex
	nextId int64
	rules  map[string]domain.Rule
}

func newMemRules(rules ...domain.Rule) *memRules {
	m := &memRules{rules: make(map[string]domain.Rule)}
	for _, r := range rules {
		_, _ = m.Create(context.Background(), r)
	}
	return m
}

func (m *memRules) Create(_ context.Context, rule domain.Rule) (domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[rule.Name]; ok {
		return domain.Rule{}, domain.ErrRuleExists
	}

	m.nextId++
	rule.Id = m.nextId
	m.rules[rule.Name] = rule

	return rule, nil
}

func (m *memRules) Update(_ context.Context, rule domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[rule.Name]; !ok {
		return domain.ErrRuleNotFound
	}
	m.rules[rule.Name] = rule

	return nil
}

func (m *memRules) Delete(_ context.Context, rule domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[rule.Name]; !ok {
		return domain.ErrRuleNotFound
	}
	delete(m.rules, rule.Name)

	return nil
}

func (m *memRules) FindById(_ context.Context, id int64) (domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rules {
		if r.Id == id {
			return r, nil
		}
	}
	return domain.Rule{}, domain.ErrRuleNotFound
}

func (m *memRules) FindByName(_ context.Context, name string) (domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[name]
	if !ok {
		return domain.Rule{}, domain.ErrRuleNotFound
	}
	return r, nil
}

func (m *memRules) FindAll(context.Context) ([]domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.Rule
	for _, r := range m.rules {
		result = append(result, r)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Id < result[k].Id })

	return result, nil
}

func (m *memRules) FindEnabled(ctx context.Context) ([]domain.Rule, error) {
	all, _ := m.FindAll(ctx)

	var result []domain.Rule
	for _, r := range all {
		if r.Enabled {
			result = append(result, r)
		}
	}
	return result, nil
}

// endregion

// region staticTargets
type staticTargets []domain.Target

func (s staticTargets) Targets() []domain.Target { return s }

func (s staticTargets) Target(jvmId string) (domain.Target, bool) {
	for _, t := range s {
		if t.JvmId == jvmId {
			return t, true
		}
	}
	return domain.Target{}, false
}

// endregion

// region fakeRecordings
type startCall struct {
	jvmId    string
	template domain.Template
	options  domain.RecordingOptions
	labels   map[string]string
}

type fakeRecordings struct {
	mu         sync.Mutex
	nextId     int64
	recordings map[string][]domain.Recording
	started    []startCall
	stopped    []int64
	startErr   map[string]error

	// runs before a recording is started, outside the lock
	beforeStart func()
}

func newFakeRecordings() *fakeRecordings {
	return &fakeRecordings{
		recordings: make(map[string][]domain.Recording),
		startErr:   make(map[string]error),
	}
}

func (f *fakeRecordings) StartRecording(
	_ context.Context,
	target domain.Target,
	_ domain.ReplacePolicy,
	template domain.Template,
	options domain.RecordingOptions,
	labels map[string]string,
) (domain.Recording, error) {
	if f.beforeStart != nil {
		f.beforeStart()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.startErr[target.JvmId]; err != nil {
		return domain.Recording{}, err
	}

	// replace: drop any recording of the same name
	var kept []domain.Recording
	for _, r := range f.recordings[target.JvmId] {
		if r.Name != options.Name {
			kept = append(kept, r)
		}
	}

	f.nextId++
	recording := domain.Recording{
		Id:      f.nextId,
		Name:    options.Name,
		State:   domain.RecordingStateRunning,
		MaxAge:  options.MaxAge,
		MaxSize: options.MaxSize,
		Labels:  labels,
	}

	f.recordings[target.JvmId] = append(kept, recording)
	f.started = append(f.started, startCall{jvmId: target.JvmId, template: template, options: options, labels: labels})

	return recording, nil
}

func (f *fakeRecordings) StopRecording(_ context.Context, target domain.Target, recording domain.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, r := range f.recordings[target.JvmId] {
		if r.Id == recording.Id {
			f.recordings[target.JvmId][i].State = domain.RecordingStateStopped
			f.stopped = append(f.stopped, r.Id)
			return nil
		}
	}
	return domain.ErrRecordingNotFound
}

func (f *fakeRecordings) GetActiveRecording(_ context.Context, target domain.Target, predicate func(domain.Recording) bool) (domain.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.recordings[target.JvmId] {
		if r.IsActive() && predicate(r) {
			return r, nil
		}
	}
	return domain.Recording{}, domain.ErrRecordingNotFound
}

func (f *fakeRecordings) startedOn(jvmId string) []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []startCall
	for _, c := range f.started {
		if c.jvmId == jvmId {
			result = append(result, c)
		}
	}
	return result
}

func (f *fakeRecordings) stoppedIds() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int64(nil), f.stopped...)
}

// endregion

// region fakeTemplates
type fakeTemplates struct{}

func (fakeTemplates) ParseEventSpecifier(specifier string) (string, domain.TemplateType, error) {
	if !strings.HasPrefix(specifier, "template=") {
		return "", "", domain.ErrTemplateNotFound
	}
	return strings.TrimPrefix(specifier, "template="), "", nil
}

func (fakeTemplates) GetPreferredTemplate(_ context.Context, _ domain.Target, name string, _ domain.TemplateType) (domain.Template, error) {
	return domain.Template{Name: name, Type: domain.TemplateTypeTarget}, nil
}

// endregion

// region memStorage
var archiveEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type memStorage struct {
	mu        sync.Mutex
	seq       int
	files     map[string]domain.ArchivedRecording
	deleteErr error
}

func newMemStorage(existing ...domain.ArchivedRecording) *memStorage {
	s := &memStorage{files: make(map[string]domain.ArchivedRecording)}
	for _, a := range existing {
		s.files[a.JvmId+"/"+a.Filename] = a
	}
	return s
}

func (s *memStorage) ArchiveRecording(_ context.Context, target domain.Target, recording domain.Recording, _ time.Duration, _ int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	ts := archiveEpoch.Add(time.Duration(s.seq) * time.Hour)

	filename := domain.ArchiveFilename{
		TargetTag:     domain.TargetTag(target),
		RecordingName: recording.Name,
		Timestamp:     ts,
	}.String()

	s.files[target.JvmId+"/"+filename] = domain.ArchivedRecording{
		Key:          target.JvmId + "/" + filename,
		JvmId:        target.JvmId,
		Filename:     filename,
		LastModified: ts,
	}

	return filename, nil
}

func (s *memStorage) DeleteArchivedRecording(_ context.Context, jvmId string, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.files, jvmId+"/"+filename)

	return nil
}

func (s *memStorage) ListArchivedRecordings(context.Context) ([]domain.ArchivedRecording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.ArchivedRecording
	for _, a := range s.files {
		result = append(result, a)
	}
	return result, nil
}

func (s *memStorage) filenames(jvmId string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []string
	for _, a := range s.files {
		if a.JvmId == jvmId {
			result = append(result, a.Filename)
		}
	}
	sort.Strings(result)
	return result
}

// endregion

// region inlinePool
type inlinePool struct {
	err error
}

func (p inlinePool) Submit(task worker.Task) error {
	if p.err != nil {
		return p.err
	}
	task(context.Background())
	return nil
}

// endregion
