package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"alfredoptarigan/resume-coach/internal/audio"
	"alfredoptarigan/resume-coach/internal/models"
	"alfredoptarigan/resume-coach/internal/repositories"
	"alfredoptarigan/resume-coach/internal/services"
)

type stubJobRepo struct {
	jobs      map[uuid.UUID]*models.GenerationJob
	createErr error
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: make(map[uuid.UUID]*models.GenerationJob)}
}

func (r *stubJobRepo) Create(job *models.GenerationJob) error {
	if r.createErr != nil {
		return r.createErr
	}
	job.ID = uuid.New()
	r.jobs[job.ID] = job
	return nil
}

func (r *stubJobRepo) FindByID(id uuid.UUID) (*models.GenerationJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("generation job %s: %w", id, repositories.ErrNotFound)
	}
	return job, nil
}

func (r *stubJobRepo) Claim(uuid.UUID) (bool, error) { return true, nil }
func (r *stubJobRepo) Requeue(uuid.UUID) error { return nil }
func (r *stubJobRepo) UpdateResult(uuid.UUID, string) error { return nil }
func (r *stubJobRepo) UpdateError(uuid.UUID, string, string) error { return nil }
func (r *stubJobRepo) FindPendingJobs(int) ([]models.GenerationJob, error) { return nil, nil }
func (r *stubJobRepo) DeleteOlderThan(time.Time) (int64, error) { return 0, nil }

type stubStorage struct {
	saved   map[string][]byte
	deleted []string
}

func (s *stubStorage) Save(_ context.Context, filename string, data []byte, _ string) (string, error) {
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	key := "key-" + filename
	s.saved[key] = data
	return key, nil
}

func (s *stubStorage) Load(_ context.Context, key string) ([]byte, error) {
	return s.saved[key], nil
}

func (s *stubStorage) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

type stubWorker struct {
	enqueued []uuid.UUID
}

func (w *stubWorker) Start(context.Context) {}
func (w *stubWorker) Stop() {}
func (w *stubWorker) EnqueueJob(id uuid.UUID) { w.enqueued = append(w.enqueued, id) }

type stubDraftRepo struct {
	drafts map[string]*models.Draft
}

func (d *stubDraftRepo) Upsert(draft *models.Draft) error {
	if d.drafts == nil {
		d.drafts = make(map[string]*models.Draft)
	}
	d.drafts[draft.SessionID] = draft
	return nil
}

func (d *stubDraftRepo) FindBySessionID(id string) (*models.Draft, error) {
	draft, ok := d.drafts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return draft, nil
}

func (d *stubDraftRepo) Delete(id string) error {
	delete(d.drafts, id)
	return nil
}

func (d *stubDraftRepo) DeleteOlderThan(time.Time) (int64, error) { return 0, nil }

type stubInterviewService struct {
	session    *services.InterviewSession
	startErr   error
	sendErr    error
	endErr     error
	transcript []models.Turn
	feedback   string
}

func (s *stubInterviewService) StartSession(_ context.Context, _, jd string, style models.InterviewStyle) (*services.InterviewSession, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.session = &services.InterviewSession{ID: "session-1", Style: style, JobDescription: jd}
	return s.session, nil
}

func (s *stubInterviewService) SendMessage(_ context.Context, _, text string) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	return "echo: " + text, nil
}

func (s *stubInterviewService) GetSession(string) (*services.InterviewSession, error) {
	if s.session == nil {
		return nil, services.ErrSessionNotFound
	}
	return s.session, nil
}

func (s *stubInterviewService) EndSession(string) (*services.InterviewSession, []models.Turn, error) {
	if s.endErr != nil {
		return nil, nil, s.endErr
	}
	return &services.InterviewSession{ID: "session-1", JobDescription: "jd"}, s.transcript, nil
}

func (s *stubInterviewService) GenerateFeedback(context.Context, []models.Turn, string) string {
	return s.feedback
}

func (s *stubInterviewService) Start(context.Context) {}
func (s *stubInterviewService) Stop() {}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func multipartRequest(t *testing.T, bundle string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if bundle != "" {
		require.NoError(t, w.WriteField("bundle", bundle))
	}
	require.NoError(t, w.WriteField("session_id", "browser-1"))
	for field, name := range files {
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, "content of "+name)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/resumes", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

const testBundle = `{"name":"Lin Mei","target_position":"Backend Engineer","projects":[{"title":"Chat"},{"title":"Billing"}]}`

func newResumeApp(jobs *stubJobRepo, storage *stubStorage, worker *stubWorker, maxSize int64) *fiber.App {
	h := NewResumeHandler(jobs, storage, worker, maxSize)
	app := fiber.New()
	app.Post("/resumes", h.HandleGenerate)
	app.Get("/resumes/:id", h.HandleGetResult)
	return app
}

func TestHandleGenerateQueuesJob(t *testing.T) {
	jobs, storage, worker := newStubJobRepo(), &stubStorage{}, &stubWorker{}
	app := newResumeApp(jobs, storage, worker, 1<<20)

	resp, err := app.Test(multipartRequest(t, testBundle, map[string]string{
		"resume_file": "old.pdf",
		"project_1":   "arch.png",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var out models.GenerateResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, string(models.StatusQueued), out.Status)

	id := uuid.MustParse(out.ID)
	require.Equal(t, []uuid.UUID{id}, worker.enqueued)

	job := jobs.jobs[id]
	assert.Equal(t, "browser-1", job.SessionID)
	assert.Contains(t, job.Bundle, `"target_position":"Backend Engineer"`)

	var refs []models.AttachmentRef
	require.NoError(t, json.Unmarshal([]byte(job.Attachments), &refs))
	require.Len(t, refs, 2)
	assert.Equal(t, 1, refs[0].ProjectIndex)
	assert.Equal(t, "arch.png", refs[0].Name)
	assert.Equal(t, -1, refs[1].ProjectIndex)
	assert.Len(t, storage.saved, 2)
}

func TestHandleGenerateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		bundle string
		files  map[string]string
	}{
		{"missing bundle", "", nil},
		{"invalid bundle", "{not json", nil},
		{"unknown project", testBundle, map[string]string{"project_7": "a.png"}},
		{"unknown field", testBundle, map[string]string{"avatar": "a.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, worker := newStubJobRepo(), &stubWorker{}
			app := newResumeApp(jobs, &stubStorage{}, worker, 1<<20)

			resp, err := app.Test(multipartRequest(t, tt.bundle, tt.files))
			require.NoError(t, err)

			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Empty(t, jobs.jobs)
			assert.Empty(t, worker.enqueued)
		})
	}
}

func TestHandleGenerateRejectsLargeFileAndCleansUp(t *testing.T) {
	storage := &stubStorage{}
	app := newResumeApp(newStubJobRepo(), storage, &stubWorker{}, 10)

	resp, err := app.Test(multipartRequest(t, testBundle, map[string]string{
		"project_0": "a.txt",
	}))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, storage.saved)
}

func TestHandleGenerateDiscardsFilesWhenJobFails(t *testing.T) {
	jobs, storage := newStubJobRepo(), &stubStorage{}
	jobs.createErr = errors.New("db down")
	app := newResumeApp(jobs, storage, &stubWorker{}, 1<<20)

	resp, err := app.Test(multipartRequest(t, testBundle, map[string]string{"project_0": "a.txt"}))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, []string{"key-a.txt"}, storage.deleted)
}

func TestHandleGetResult(t *testing.T) {
	jobs := newStubJobRepo()
	result := `{"professionalTitle":"Engineer","skills":["Go"]}`
	kind, msg := services.KindParse, "malformed model response"
	completed := &models.GenerationJob{ID: uuid.New(), Status: models.StatusCompleted, Result: &result}
	failed := &models.GenerationJob{ID: uuid.New(), Status: models.StatusFailed, ErrorKind: &kind, ErrorMessage: &msg}
	jobs.jobs[completed.ID] = completed
	jobs.jobs[failed.ID] = failed
	app := newResumeApp(jobs, &stubStorage{}, &stubWorker{}, 0)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/resumes/"+completed.ID.String(), nil))
	require.NoError(t, err)
	var done models.ResultResponse
	decodeBody(t, resp, &done)
	require.NotNil(t, done.Result)
	assert.Equal(t, "Engineer", done.Result.ProfessionalTitle)
	assert.Nil(t, done.ErrorKind)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/resumes/"+failed.ID.String(), nil))
	require.NoError(t, err)
	var bad models.ResultResponse
	decodeBody(t, resp, &bad)
	assert.Nil(t, bad.Result)
	require.NotNil(t, bad.ErrorKind)
	assert.Equal(t, services.KindParse, *bad.ErrorKind)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/resumes/"+uuid.NewString(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/resumes/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDraftHandlers(t *testing.T) {
	h := NewDraftHandler(&stubDraftRepo{})
	app := fiber.New()
	app.Put("/drafts/:sessionId", h.HandleSave)
	app.Get("/drafts/:sessionId", h.HandleGet)
	app.Delete("/drafts/:sessionId", h.HandleDelete)

	req := httptest.NewRequest(http.MethodPut, "/drafts/abc", strings.NewReader(`{"name":"Lin"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/drafts/abc", nil))
	require.NoError(t, err)
	var draft models.DraftResponse
	decodeBody(t, resp, &draft)
	assert.Equal(t, "abc", draft.SessionID)
	assert.JSONEq(t, `{"name":"Lin"}`, string(draft.Data))

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/drafts/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/drafts/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPut, "/drafts/abc", strings.NewReader(`[1,2]`))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func newInterviewApp(svc *stubInterviewService) *fiber.App {
	h := NewInterviewHandler(svc)
	app := fiber.New()
	app.Post("/interviews", h.HandleStart)
	app.Post("/interviews/:id/messages", h.HandleMessage)
	app.Post("/interviews/:id/end", h.HandleEnd)
	return app
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestInterviewStart(t *testing.T) {
	svc := &stubInterviewService{}
	app := newInterviewApp(svc)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/interviews",
		`{"resume_text":"r","job_description":"jd","style":"strict"}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out models.StartInterviewResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "session-1", out.ID)
	assert.Equal(t, "strict", out.Style)
}

func TestInterviewStartValidation(t *testing.T) {
	app := newInterviewApp(&stubInterviewService{})

	for _, body := range []string{
		`{"job_description":"jd"}`,
		`{"resume_text":"r","job_description":"jd","style":"rude"}`,
	} {
		resp, err := app.Test(jsonRequest(http.MethodPost, "/interviews", body))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, body)

		var out models.ErrorResponse
		decodeBody(t, resp, &out)
		assert.Equal(t, CodeValidation, out.Code)
	}
}

func TestInterviewErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"missing key", fmt.Errorf("start: %w", services.ErrMissingAPIKey), fiber.StatusServiceUnavailable, CodeConfiguration},
		{"ended", services.ErrSessionEnded, fiber.StatusConflict, CodeConflict},
		{"not found", services.ErrSessionNotFound, fiber.StatusNotFound, CodeNotFound},
		{"rate limited", fmt.Errorf("chat: %w: %w", services.ErrTransport, genai.APIError{Code: 429}), fiber.StatusTooManyRequests, CodeRateLimited},
		{"transport", fmt.Errorf("chat: %w", services.ErrTransport), fiber.StatusBadGateway, CodeTransport},
		{"parse", services.ErrParse, fiber.StatusBadGateway, CodeParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newInterviewApp(&stubInterviewService{sendErr: tt.err})

			resp, err := app.Test(jsonRequest(http.MethodPost, "/interviews/x/messages", `{"text":"hello"}`))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var out models.ErrorResponse
			decodeBody(t, resp, &out)
			assert.Equal(t, tt.code, out.Code)
		})
	}
}

func TestInterviewMessageAndEnd(t *testing.T) {
	svc := &stubInterviewService{
		session:    &services.InterviewSession{ID: "session-1"},
		transcript: []models.Turn{{Role: models.RoleUser, Text: "hello"}, {Role: models.RoleModel, Text: "hi"}},
		feedback:   "Score: 90",
	}
	app := newInterviewApp(svc)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/interviews/session-1/messages", `{"text":"hello"}`))
	require.NoError(t, err)
	var msg models.SendMessageResponse
	decodeBody(t, resp, &msg)
	assert.Equal(t, "echo: hello", msg.Reply)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/interviews/session-1/end", ""))
	require.NoError(t, err)
	var end models.EndInterviewResponse
	decodeBody(t, resp, &end)
	assert.Equal(t, "Score: 90", end.Feedback)
	assert.Equal(t, svc.transcript, end.Transcript)
}

type recordingWriter struct {
	mu       sync.Mutex
	messages []liveServerMessage
}

func (w *recordingWriter) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, v.(liveServerMessage))
	return nil
}

func TestParseStartMessage(t *testing.T) {
	msg, err := parseStartMessage([]byte(`{"type":"start","resumeText":"r","jobDescription":"jd","style":"strict","microphoneGranted":false}`))
	require.NoError(t, err)
	assert.Equal(t, "jd", msg.JobDescription)
	require.NotNil(t, msg.MicrophoneGranted)
	assert.False(t, *msg.MicrophoneGranted)

	_, err = parseStartMessage([]byte(`{"type":"stop"}`))
	assert.Error(t, err)
	_, err = parseStartMessage([]byte(`nope`))
	assert.Error(t, err)
}

func TestSocketDevicesDenyMicrophone(t *testing.T) {
	devices := &socketDevices{mic: newSocketMicrophone(16000), sink: newSocketSink(&recordingWriter{}), granted: false}

	_, err := devices.OpenMicrophone(context.Background())

	assert.ErrorIs(t, err, services.ErrMicrophoneDenied)
	status, code := StatusFor(err)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, CodeMicrophone, code)
}

func TestSocketMicrophone(t *testing.T) {
	mic := newSocketMicrophone(16000)
	require.True(t, mic.push([]float32{0.5}))

	samples, err := mic.ReadSamples(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, samples)

	require.NoError(t, mic.Close())
	require.NoError(t, mic.Close())
	assert.False(t, mic.push([]float32{1}))

	_, err = mic.ReadSamples(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSocketSinkSendsScheduledAudio(t *testing.T) {
	out := &recordingWriter{}
	sink := newSocketSink(out)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sink.started = base
	sink.now = func() time.Time { return base.Add(1500 * time.Millisecond) }

	assert.InDelta(t, 1.5, sink.CurrentTime(), 1e-9)

	require.NoError(t, sink.Play(audio.Buffer{Samples: []float32{0.25, -0.5}, SampleRate: 24000}, 2.0))
	sink.StopAll()
	require.NoError(t, sink.Close())
	sink.StopAll()
	assert.ErrorIs(t, sink.Play(audio.Buffer{SampleRate: 24000}, 3), services.ErrLiveClosed)

	require.Len(t, out.messages, 2)
	audioMsg := out.messages[0]
	assert.Equal(t, "audio", audioMsg.Type)
	require.NotNil(t, audioMsg.StartAt)
	assert.Equal(t, 2.0, *audioMsg.StartAt)
	assert.Equal(t, 24000, audioMsg.SampleRate)
	assert.NotEmpty(t, audioMsg.Data)
	assert.Equal(t, "stop", out.messages[1].Type)
}

func TestForwardEvent(t *testing.T) {
	out := &recordingWriter{}
	forward := forwardEvent(out)

	forward(services.LiveEvent{Type: services.EventTranscript, Role: models.RoleModel, Text: "Hi"})
	forward(services.LiveEvent{Type: services.EventAudio})
	forward(services.LiveEvent{Type: services.EventTurnComplete})

	require.Len(t, out.messages, 2)
	assert.Equal(t, liveServerMessage{Type: "transcript", Role: "model", Text: "Hi"}, out.messages[0])
	assert.Equal(t, "turnComplete", out.messages[1].Type)
}

func TestVoiceFeedback(t *testing.T) {
	svc := &stubInterviewService{feedback: "Score: 75"}

	assert.Equal(t, services.VoiceSessionCompleted, voiceFeedback(context.Background(), svc, nil, "jd"))
	assert.Equal(t, "Score: 75", voiceFeedback(context.Background(), svc,
		[]models.Turn{{Role: models.RoleUser, Text: "I led the migration"}}, "jd"))
}
