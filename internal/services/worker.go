package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"alfredoptarigan/resume-coach/internal/config"
	"alfredoptarigan/resume-coach/internal/models"
	"alfredoptarigan/resume-coach/internal/repositories"
)

const purgeInterval = time.Hour

type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueJob(jobID uuid.UUID)
}

type worker struct {
	jobRepo   repositories.GenerationJobRepository
	draftRepo repositories.DraftRepository
	generator ResumeGenerator
	storage   StorageService
	notifier  Notifier
	cfg       config.WorkerConfig

	jobQueue chan uuid.UUID
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewWorker(
	jobRepo repositories.GenerationJobRepository,
	draftRepo repositories.DraftRepository,
	generator ResumeGenerator,
	storage StorageService,
	notifier Notifier,
	cfg config.WorkerConfig,
) Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if notifier == nil {
		notifier = NewNoopNotifier()
	}

	return &worker{
		jobRepo:   jobRepo,
		draftRepo: draftRepo,
		generator: generator,
		storage:   storage,
		notifier:  notifier,
		cfg:       cfg,
		jobQueue:  make(chan uuid.UUID, cfg.QueueSize),
		stopChan:  make(chan struct{}),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	log.Printf("🚀 Starting worker with %d concurrent workers\n", w.cfg.Concurrency)

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i+1)
	}

	w.wg.Add(1)
	go w.pollPendingJobs()

	if w.cfg.RetentionPeriod > 0 {
		w.wg.Add(1)
		go w.purgeExpired()
	}

	log.Println("✅ Worker started successfully")
}

// Stop implements Worker.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		log.Println("🛑 Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()
		log.Println("✅ Worker stopped")
	})
}

// EnqueueJob implements Worker.
func (w *worker) EnqueueJob(jobID uuid.UUID) {
	select {
	case w.jobQueue <- jobID:
		log.Printf("📥 Job %s enqueued\n", jobID)
	case <-w.stopChan:
		log.Printf("⚠️  Worker stopped, cannot enqueue job %s\n", jobID)
	}
}

func (w *worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()
	log.Printf("🚀 Worker %d started processing jobs\n", workerID)

	for {
		select {
		case <-w.stopChan:
			log.Printf("👷 Worker #%d stopped\n", workerID)
			return
		case jobID := <-w.jobQueue:
			log.Printf("👷 Worker #%d processing job %s\n", workerID, jobID)
			if err := w.processJob(ctx, jobID); err != nil {
				log.Printf("❌ Worker #%d failed to process job %s: %v\n", workerID, jobID, err)
			}
		}
	}
}

// processJob runs one generation. A job that another worker already claimed
// is skipped.
func (w *worker) processJob(ctx context.Context, jobID uuid.UUID) error {
	claimed, err := w.jobRepo.Claim(jobID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Printf("⏭️  Job %s already claimed, skipping\n", jobID)
		return nil
	}

	job, err := w.jobRepo.FindByID(jobID)
	if err != nil {
		return err
	}
	w.notify(job, models.StatusProcessing, "")

	bundle, refs, err := w.loadBundle(ctx, job)
	if err != nil {
		w.fail(job, KindInternal, err)
		w.cleanup(ctx, refs)
		return err
	}

	resume, err := w.generator.Generate(ctx, bundle)
	if err != nil {
		if errors.Is(err, ErrTransport) && job.Attempts < w.cfg.MaxAttempts {
			return w.retry(job, err)
		}
		w.fail(job, ErrorKind(err), err)
		w.cleanup(ctx, refs)
		return err
	}

	payload, err := json.Marshal(resume)
	if err != nil {
		w.fail(job, KindInternal, err)
		w.cleanup(ctx, refs)
		return fmt.Errorf("failed to encode resume: %w", err)
	}

	if err := w.jobRepo.UpdateResult(jobID, string(payload)); err != nil {
		w.fail(job, KindInternal, err)
		w.cleanup(ctx, refs)
		return fmt.Errorf("failed to save resume: %w", err)
	}
	w.cleanup(ctx, refs)
	w.notify(job, models.StatusCompleted, "")

	log.Printf("✅ Job %s completed\n", jobID)
	return nil
}

// retry puts the job back in the queue after RetryDelay. Its attachments are
// kept for the next attempt.
func (w *worker) retry(job *models.GenerationJob, cause error) error {
	log.Printf("🔄 Job %s attempt %d/%d failed, retrying in %s: %v\n",
		job.ID, job.Attempts, w.cfg.MaxAttempts, w.cfg.RetryDelay, cause)

	if err := w.jobRepo.Requeue(job.ID); err != nil {
		return err
	}
	w.notify(job, models.StatusQueued, ErrorKind(cause))

	time.AfterFunc(w.cfg.RetryDelay, func() {
		w.EnqueueJob(job.ID)
	})
	return nil
}

func (w *worker) fail(job *models.GenerationJob, kind string, cause error) {
	if err := w.jobRepo.UpdateError(job.ID, kind, cause.Error()); err != nil {
		log.Printf("❌ Failed to record error for job %s: %v\n", job.ID, err)
	}
	w.notify(job, models.StatusFailed, kind)
}

// loadBundle restores the bundle and re-attaches its stored files. A file
// that cannot be loaded is replaced by a text marker.
func (w *worker) loadBundle(ctx context.Context, job *models.GenerationJob) (*models.UserInputBundle, []models.AttachmentRef, error) {
	var refs []models.AttachmentRef
	if job.Attachments != "" {
		if err := json.Unmarshal([]byte(job.Attachments), &refs); err != nil {
			return nil, nil, fmt.Errorf("failed to decode attachments: %w", err)
		}
	}

	var bundle models.UserInputBundle
	if err := json.Unmarshal([]byte(job.Bundle), &bundle); err != nil {
		return nil, refs, fmt.Errorf("failed to decode bundle: %w", err)
	}

	for _, ref := range refs {
		blob := models.FileBlob{Name: ref.Name, MIMEType: ref.MIMEType}

		data, err := w.storage.Load(ctx, ref.StorageKey)
		if err != nil {
			log.Printf("⚠️  Failed to load attachment %s for job %s: %v\n", ref.Name, job.ID, err)
			blob.MIMEType = "text/plain"
			data = []byte(fmt.Sprintf("[Error reading attachment: %s]", ref.Name))
		}
		blob.Data = data

		switch {
		case ref.ProjectIndex < 0:
			b := blob
			bundle.ResumeFile = &b
		case ref.ProjectIndex < len(bundle.Projects):
			p := &bundle.Projects[ref.ProjectIndex]
			p.Attachments = append(p.Attachments, blob)
		default:
			log.Printf("⚠️  Attachment %s references missing project %d\n", ref.Name, ref.ProjectIndex)
		}
	}

	return &bundle, refs, nil
}

func (w *worker) cleanup(ctx context.Context, refs []models.AttachmentRef) {
	for _, ref := range refs {
		if err := w.storage.Delete(ctx, ref.StorageKey); err != nil {
			log.Printf("⚠️  Failed to delete attachment %s: %v\n", ref.StorageKey, err)
		}
	}
}

func (w *worker) notify(job *models.GenerationJob, status models.JobStatus, kind string) {
	err := w.notifier.PublishJobUpdate(JobUpdate{
		JobID:     job.ID.String(),
		SessionID: job.SessionID,
		Status:    status,
		ErrorKind: kind,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("⚠️  Failed to publish update for job %s: %v\n", job.ID, err)
	}
}

func (w *worker) pollPendingJobs() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	log.Println("🔄 Starting pending jobs poller")

	for {
		select {
		case <-w.stopChan:
			log.Println("🔄 Pending jobs poller stopped")
			return
		case <-ticker.C:
			pendingJobs, err := w.jobRepo.FindPendingJobs(10)
			if err != nil {
				log.Printf("⚠️  Failed to fetch pending jobs: %v\n", err)
				continue
			}

			if len(pendingJobs) > 0 {
				log.Printf("📋 Found %d pending jobs\n", len(pendingJobs))
			}

			for _, job := range pendingJobs {
				w.EnqueueJob(job.ID)
			}
		}
	}
}

func (w *worker) purgeExpired() {
	defer w.wg.Done()
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.purge(time.Now().Add(-w.cfg.RetentionPeriod))
		}
	}
}

func (w *worker) purge(cutoff time.Time) {
	jobs, err := w.jobRepo.DeleteOlderThan(cutoff)
	if err != nil {
		log.Printf("⚠️  Failed to purge generation jobs: %v\n", err)
	}

	drafts, err := w.draftRepo.DeleteOlderThan(cutoff)
	if err != nil {
		log.Printf("⚠️  Failed to purge drafts: %v\n", err)
	}

	if jobs > 0 || drafts > 0 {
		log.Printf("🧹 Purged %d jobs and %d drafts older than %s\n", jobs, drafts, cutoff.Format(time.RFC3339))
	}
}
