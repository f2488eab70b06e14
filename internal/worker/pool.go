package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"timekill-backend/internal/models"
	"timekill-backend/internal/repository"
	"timekill-backend/internal/services"
)

const pairQueue = "queue:pair-extraction"

type Pool struct {
	redis       *redis.Client
	extraction  *services.ExtractionService
	jobRepo     *repository.JobRepo
	setRepo     *repository.SetRepo
	userRepo    *repository.UserRepo
	email       *services.EmailService
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	extraction *services.ExtractionService,
	jobRepo *repository.JobRepo,
	setRepo *repository.SetRepo,
	userRepo *repository.UserRepo,
	email *services.EmailService,
	workerCount int,
) *Pool {
	return &Pool{
		redis:       redisClient,
		extraction:  extraction,
		jobRepo:     jobRepo,
		setRepo:     setRepo,
		userRepo:    userRepo,
		email:       email,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, pairQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		// Parse job
		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Try to acquire lock
		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		log.Printf("Worker %d: processing job %s (type: %s)", id, job.ID, job.Type)

		p.jobRepo.UpdateStatus(ctx, job.ID, "processing")
		p.setRepo.UpdateStatus(ctx, job.ReferenceID, "processing")

		var processErr error
		switch job.Type {
		case "pair-extraction":
			processErr = p.extraction.ExtractPairs(ctx, &job)
		default:
			processErr = fmt.Errorf("unknown job type: %s", job.Type)
		}

		if processErr != nil {
			p.handleFailure(ctx, &job, processErr)
		} else {
			p.handleSuccess(ctx, &job)
		}

		// Release lock
		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.jobRepo.UpdateStatus(ctx, job.ID, "completed")

	go p.sendCompletionEmail(context.Background(), job)

	p.extraction.PublishUpdate(ctx, job.UserID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   job.ReferenceID,
			ResultType: "note_set",
		},
	})

	log.Printf("Job %s completed successfully", job.ID)
}

func (p *Pool) sendCompletionEmail(ctx context.Context, job *models.Job) {
	if p.email == nil || p.userRepo == nil || p.setRepo == nil {
		return
	}

	user, err := p.userRepo.GetByID(ctx, job.UserID)
	if err != nil {
		log.Printf("failed to load user %s for completion email: %v", job.UserID, err)
		return
	}

	set, err := p.setRepo.GetByID(ctx, job.ReferenceID)
	if err != nil {
		log.Printf("failed to load set %s for completion email: %v", job.ReferenceID, err)
		return
	}

	if err := p.email.SendExtractionCompleteEmail(user.Email, set.Title, set.ID.String()); err != nil {
		log.Printf("failed to send extraction-complete email to %s for set %s: %v", user.Email, set.ID, err)
	}
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if job.RetryCount < 3 {
		// Re-queue with backoff
		log.Printf("Job %s failed (attempt %d): %s, retrying", job.ID, job.RetryCount, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "pending")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		jobBytes, _ := json.Marshal(job)
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		time.AfterFunc(backoff, func() {
			p.redis.LPush(context.Background(), pairQueue, string(jobBytes))
		})
	} else {
		// Max retries reached
		log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "failed")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
		p.setRepo.UpdateStatus(ctx, job.ReferenceID, "failed")

		p.extraction.PublishUpdate(ctx, job.UserID, models.WSMessage{
			Type: "error",
			Payload: models.ErrorEvent{
				JobID:        job.ID,
				ErrorCode:    "JOB_FAILED",
				ErrorMessage: errMsg,
			},
		})
	}
}
