package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"officeflow/internal/collection"
	"officeflow/internal/infra/persistence/jsonfile"
	"officeflow/pkg/domain"
)

const (
	documentCategory = "DOC"
	documentWidth    = 4
	pullNote         = "File pulled by Administrator"
)

// CreateDocumentInput describes a new draft.
type CreateDocumentInput struct {
	Department string `validate:"required,segment"`
	Title      string `validate:"notblank"`
	Content    string
	Creator    string `validate:"required"`
	// DueDate is YYYY-MM-DD; empty leaves the document without a due date.
	DueDate string `validate:"omitempty,datetime=2006-01-02"`
	// Extra keys are stored verbatim next to the modelled fields.
	Extra map[string]any
}

// MoveDocumentInput hands a document to another user.
type MoveDocumentInput struct {
	Department string `validate:"required,segment"`
	DocumentID string `validate:"required"`
	Target     string `validate:"required"`
	Actor      string `validate:"required"`
	// Status replaces the document status when set.
	Status domain.DocumentStatus
	// DueDate sets the due date; empty clears a previously present one to null.
	DueDate string `validate:"omitempty,datetime=2006-01-02"`
}

// EditDocumentInput replaces title and content in place.
type EditDocumentInput struct {
	Department string `validate:"required,segment"`
	DocumentID string `validate:"required"`
	Actor      string `validate:"required"`
	Title      string
	Content    string
}

// CreateDocument allocates the next DOC_<year>_<nnnn> id and writes a draft
// owned by its creator. An existing file is never overwritten.
func (s *Service) CreateDocument(ctx context.Context, in CreateDocumentInput) (domain.Document, error) {
	var created domain.Document
	err := s.observe(ctx, call{op: opCreateDocument, dept: in.Department, actor: in.Creator}, func(ctx context.Context) (string, error) {
		if err := s.check(domain.EntityDocument, "", in); err != nil {
			return "", err
		}
		now := s.clock.Now()
		doc := domain.Document{
			Title:        strings.TrimSpace(in.Title),
			Content:      in.Content,
			CreatedBy:    in.Creator,
			CreatedAt:    now.Format(time.RFC3339),
			CurrentOwner: in.Creator,
			Status:       domain.StatusDraft,
			History:      []domain.Event{},
			Attachments:  []domain.Attachment{},
		}
		if in.DueDate != "" {
			doc.DueDate = domain.DueOn(in.DueDate)
		}
		if len(in.Extra) > 0 {
			extra, err := encodeExtra(in.Extra)
			if err != nil {
				return "", domain.Invalid(domain.EntityDocument, "", err.Error())
			}
			doc.Extra = extra
		}
		id, err := s.alloc.Reserve(ctx, s.documentsDir(in.Department), documentCategory, now.Year(), documentWidth, func(id string) error {
			doc.ID = id
			return jsonfile.Create(s.documentPath(in.Department, id), doc)
		})
		if err != nil {
			return "", persistErr(domain.EntityDocument, "", err)
		}
		doc.ID = id
		created = doc
		return id, nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	return created, nil
}

// GetDocument loads one document.
func (s *Service) GetDocument(_ context.Context, dept, id string) (domain.Document, error) {
	if err := requireDepartment(dept); err != nil {
		return domain.Document{}, err
	}
	return s.loadDocument(dept, id)
}

// MoveDocument transfers ownership to a selectable user of the department,
// appends a moved event and writes one master log line. Whether the actor may
// move the document is decided by the caller, usually with IsOwnerOrAdmin.
func (s *Service) MoveDocument(ctx context.Context, in MoveDocumentInput) (domain.Document, error) {
	var moved domain.Document
	var from string
	err := s.observe(ctx, call{op: opMoveDocument, dept: in.Department, actor: in.Actor, entity: in.DocumentID}, func(ctx context.Context) (string, error) {
		if err := s.check(domain.EntityDocument, in.DocumentID, in); err != nil {
			return "", err
		}
		if _, err := s.collections.FindByID(ctx, collection.Department(in.Department), domain.CollectionUsers, in.Target, domain.FilterSelectable); err != nil {
			return "", err
		}
		doc, err := s.mutateDocument(ctx, in.Department, in.DocumentID, func(doc *domain.Document) error {
			from = doc.CurrentOwner
			ev := domain.Event{Action: domain.ActionMoved, From: from, To: in.Target, By: in.Actor, Time: s.eventTime(*doc)}
			doc.CurrentOwner = in.Target
			if in.Status != "" {
				doc.Status = in.Status
			}
			if in.DueDate != "" {
				doc.DueDate = domain.DueOn(in.DueDate)
				ev.DueDate = in.DueDate
			} else {
				doc.DueDate = doc.DueDate.Cleared()
			}
			doc.History = append(doc.History, ev)
			return nil
		})
		if err != nil {
			return "", err
		}
		moved = doc
		return doc.ID, nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	ev, _ := moved.LastEvent()
	s.appendMasterLog(in.Department, fmt.Sprintf("[%s] %s moved from %s to %s by %s status=%s", ev.Time, moved.ID, from, in.Target, in.Actor, moved.Status))
	return moved, nil
}

// EditDocument replaces title and content. Edits are refused outside draft
// and correction whoever asks; otherwise only the current owner may edit.
func (s *Service) EditDocument(ctx context.Context, in EditDocumentInput) (domain.Document, error) {
	var edited domain.Document
	err := s.observe(ctx, call{op: opEditDocument, dept: in.Department, actor: in.Actor, entity: in.DocumentID}, func(ctx context.Context) (string, error) {
		if err := s.check(domain.EntityDocument, in.DocumentID, in); err != nil {
			return "", err
		}
		doc, err := s.mutateDocument(ctx, in.Department, in.DocumentID, func(doc *domain.Document) error {
			if !doc.Status.Editable() {
				return domain.Invalid(domain.EntityDocument, doc.ID, fmt.Sprintf("editing is not allowed in status %q", doc.Status))
			}
			if doc.CurrentOwner != in.Actor {
				return domain.Forbidden(domain.EntityDocument, doc.ID, "only the current owner can edit the document")
			}
			doc.Title = strings.TrimSpace(in.Title)
			doc.Content = in.Content
			doc.History = append(doc.History, domain.Event{Action: domain.ActionEdited, By: in.Actor, Time: s.eventTime(*doc)})
			return nil
		})
		if err != nil {
			return "", err
		}
		edited = doc
		return doc.ID, nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	return edited, nil
}

// PullDocument lets a department administrator take over a document from
// whoever holds it.
func (s *Service) PullDocument(ctx context.Context, dept, id, admin string) (domain.Document, error) {
	var pulled domain.Document
	var from string
	err := s.observe(ctx, call{op: opPullDocument, dept: dept, actor: admin, entity: id}, func(ctx context.Context) (string, error) {
		if err := requireDepartment(dept); err != nil {
			return "", err
		}
		ok, err := s.perms.IsAdmin(ctx, dept, admin)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", domain.Forbidden(domain.EntityDocument, id, "administrator rights required")
		}
		doc, err := s.mutateDocument(ctx, dept, id, func(doc *domain.Document) error {
			from = doc.CurrentOwner
			doc.History = append(doc.History, domain.Event{
				Action: domain.ActionAdminOverride,
				From:   from,
				To:     admin,
				By:     admin,
				Time:   s.eventTime(*doc),
				Note:   pullNote,
			})
			doc.CurrentOwner = admin
			return nil
		})
		if err != nil {
			return "", err
		}
		pulled = doc
		return doc.ID, nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	ev, _ := pulled.LastEvent()
	s.appendMasterLog(dept, fmt.Sprintf("[%s] %s pulled from %s by %s status=%s", ev.Time, pulled.ID, from, admin, pulled.Status))
	return pulled, nil
}

// ListDocuments returns every readable document of the department ordered by
// id. Files without an id take it from their file name; unreadable files are skipped.
func (s *Service) ListDocuments(_ context.Context, dept string) ([]domain.Document, error) {
	if err := requireDepartment(dept); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.documentsDir(dept))
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Document{}, nil
	}
	if err != nil {
		return nil, domain.PersistFailure(domain.EntityDocument, "", err)
	}
	docs := make([]domain.Document, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		var doc domain.Document
		if !jsonfile.ReadInto(filepath.Join(s.documentsDir(dept), name), &doc) {
			continue
		}
		if doc.ID == "" {
			doc.ID = strings.TrimSuffix(name, ".json")
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Service) loadDocument(dept, id string) (domain.Document, error) {
	if !collection.ValidSegment(id) {
		return domain.Document{}, domain.Invalid(domain.EntityDocument, id, "malformed document id")
	}
	var doc domain.Document
	if !jsonfile.ReadInto(s.documentPath(dept, id), &doc) {
		return domain.Document{}, domain.NotFound(domain.EntityDocument, id)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return doc, nil
}

// mutateDocument applies fn to a copy of the stored document under the
// document lock and persists the result. Nothing is written when fn fails.
func (s *Service) mutateDocument(ctx context.Context, dept, id string, fn func(doc *domain.Document) error) (domain.Document, error) {
	if _, err := s.loadDocument(dept, id); err != nil {
		return domain.Document{}, err
	}
	path := s.documentPath(dept, id)
	var out domain.Document
	err := jsonfile.WithLock(ctx, path, func() error {
		doc, err := s.loadDocument(dept, id)
		if err != nil {
			return err
		}
		next := doc.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		if err := s.writeDocument(path, next); err != nil {
			return domain.PersistFailure(domain.EntityDocument, id, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Document{}, persistErr(domain.EntityDocument, id, err)
	}
	return out, nil
}

// eventTime returns now as RFC 3339, never earlier than the last event of doc.
func (s *Service) eventTime(doc domain.Document) string {
	now := s.clock.Now().Truncate(time.Second)
	if last, ok := doc.LastEvent(); ok {
		if prev, err := time.Parse(time.RFC3339, last.Time); err == nil && prev.After(now) {
			return prev.UTC().Format(time.RFC3339)
		}
	}
	return now.Format(time.RFC3339)
}

// appendMasterLog writes one line to the department master log. Failures are
// logged and never surface to the caller.
func (s *Service) appendMasterLog(dept, line string) {
	if err := jsonfile.AppendLine(s.masterLogPath(dept), line); err != nil {
		s.logger.Warn("master log append failed", zap.String("department", dept), zap.Error(err))
	}
}

// MasterLog returns the department master log lines, oldest first.
func (s *Service) MasterLog(_ context.Context, dept string) ([]string, error) {
	if err := requireDepartment(dept); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.masterLogPath(dept))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, domain.PersistFailure(domain.EntityDepartment, dept, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return []string{}, nil
	}
	return lines, nil
}
