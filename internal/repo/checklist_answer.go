package repo

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zulandar/fieldsync/internal/logic"
	"github.com/zulandar/fieldsync/internal/models"
	"github.com/zulandar/fieldsync/internal/outbox"
	"github.com/zulandar/fieldsync/internal/store"
)

// EntityChecklistAnswers is the outbox/sync entity name for answers.
const EntityChecklistAnswers = "checklist_answers"

// UpsertAnswer records a response to one question of one instance. If a row
// for (instance, question) already exists it is updated in place, otherwise
// a new row is inserted under a fresh client-generated id. Either way the
// row's sync status resets to PENDING and the mutation is queued. The
// owning instance's progress is recomputed afterwards.
func UpsertAnswer(st *store.Store, technicianID, instanceID, questionID, questionType string, value logic.AnswerValue) (*models.ChecklistAnswer, error) {
	if instanceID == "" || questionID == "" {
		return nil, validation("instance id and question id are required")
	}

	var answer models.ChecklistAnswer
	err := st.FindOne(&answer,
		"instance_id = ? AND question_id = ? AND technician_id = ?", instanceID, questionID, technicianID)
	exists := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("repo: find answer: %w", err)
	}

	if !exists {
		id := uuid.NewString()
		answer = models.ChecklistAnswer{
			ID:           id,
			InstanceID:   instanceID,
			QuestionID:   questionID,
			QuestionType: questionType,
			LocalID:      id,
			TechnicianID: technicianID,
		}
	}
	answer.QuestionType = questionType
	answer.SetValue(value)
	answer.SyncStatus = models.SyncPending

	op := models.OpUpdate
	if !exists {
		op = models.OpCreate
	}

	err = st.Transaction(func(tx *store.Store) error {
		if exists {
			if err := tx.DB().Save(&answer).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Insert(&answer); err != nil {
				return err
			}
		}
		return outbox.Enqueue(tx, EntityChecklistAnswers, answer.ID, op, AnswerPayload(&answer))
	})
	if err != nil {
		return nil, fmt.Errorf("repo: upsert answer: %w", err)
	}

	if _, err := RecomputeInstanceProgress(st, technicianID, instanceID); err != nil {
		return nil, err
	}
	return &answer, nil
}

// AnswersForInstance returns every answer of an instance within the
// technician's scope.
func AnswersForInstance(st *store.Store, technicianID, instanceID string) ([]models.ChecklistAnswer, error) {
	var answers []models.ChecklistAnswer
	err := st.FindAll(&answers, "instance_id = ? AND technician_id = ?", instanceID, technicianID)
	if err != nil {
		return nil, fmt.Errorf("repo: answers for instance %s: %w", instanceID, err)
	}
	return answers, nil
}

// AnswerValues builds the evaluator's answer map for an instance.
func AnswerValues(st *store.Store, technicianID, instanceID string) (map[string]logic.AnswerValue, error) {
	answers, err := AnswersForInstance(st, technicianID, instanceID)
	if err != nil {
		return nil, err
	}
	values := make(map[string]logic.AnswerValue, len(answers))
	for i := range answers {
		values[answers[i].QuestionID] = answers[i].Value()
	}
	return values, nil
}

// MarkAnswerSyncedWithServerID reconciles a client-generated answer id with
// the id the server assigned. When they already agree the row is just
// marked synced; when they differ the row is re-keyed under the server id
// so no duplicate survives.
func MarkAnswerSyncedWithServerID(st *store.Store, localID, serverID string) error {
	var answer models.ChecklistAnswer
	err := st.FindOne(&answer, "id = ? OR local_id = ?", localID, localID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("checklist answer", localID)
	}
	if err != nil {
		return fmt.Errorf("repo: find answer %s: %w", localID, err)
	}

	now := time.Now()
	if answer.ID == serverID {
		err := st.Update(&models.ChecklistAnswer{}, answer.ID, map[string]interface{}{
			"sync_status": models.SyncSynced,
			"synced_at":   now,
		})
		if err != nil {
			return fmt.Errorf("repo: mark answer synced: %w", err)
		}
		return nil
	}

	return st.Transaction(func(tx *store.Store) error {
		if err := tx.Remove(&models.ChecklistAnswer{}, "id = ?", answer.ID); err != nil {
			return fmt.Errorf("repo: drop local answer row: %w", err)
		}
		answer.ID = serverID
		answer.SyncStatus = models.SyncSynced
		answer.SyncedAt = &now
		if err := tx.Upsert(&answer); err != nil {
			return fmt.Errorf("repo: insert server answer row: %w", err)
		}
		return nil
	})
}

// AnswerPayload shapes the outbox payload for an answer mutation.
func AnswerPayload(a *models.ChecklistAnswer) map[string]interface{} {
	p := map[string]interface{}{
		"id":           a.ID,
		"localId":      a.LocalID,
		"instanceId":   a.InstanceID,
		"questionId":   a.QuestionID,
		"questionType": a.QuestionType,
	}
	switch v := a.Value(); v.Kind {
	case logic.KindText:
		p["valueText"] = v.Text
	case logic.KindNumber:
		p["valueNumber"] = v.Number
	case logic.KindBool:
		p["valueBool"] = v.Bool
	case logic.KindDate:
		p["valueDate"] = v.Date.UTC().Format(time.RFC3339)
	case logic.KindJSON:
		p["valueJson"] = string(v.JSON)
	}
	return p
}
