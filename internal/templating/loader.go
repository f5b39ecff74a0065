package templating

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"pulseflow/internal/repository"
	"pulseflow/pkg/constraints"
)

var (
	ErrTemplateNotFound         = errors.New("template not found")
	ErrDatabaseTemplateRequired = errors.New("database template required for this channel")
)

const (
	SourceDatabase   = "database"
	SourceFilesystem = "filesystem"
	SourceDefault    = "default"
)

//go:embed defaults
var defaults embed.FS

var defaultSubjects = map[string]string{
	constraints.EventServiceDown:      "[DOWN] {{serviceName}}",
	constraints.EventServiceRecovered: "[RECOVERED] {{serviceName}}",
	constraints.EventCertExpiring:     "[TLS] Certificate for {{domain}} expires in {{daysRemaining}} day(s)",
	constraints.EventUserCreated:      "Welcome to PulseFlow",
	constraints.EventPasswordReset:    "PulseFlow password reset",
}

// Resolved holds unrendered subject and body text for one (event, channel) pair.
type Resolved struct {
	Subject string
	Body    string
	Source  string
}

// ModeFunc returns the storage mode used when a template row does not name one.
type ModeFunc func() string

type Loader struct {
	repo repository.TemplateInterface
	dir  string
	mode ModeFunc
}

func NewLoader(repo repository.TemplateInterface, dir string, mode ModeFunc) *Loader {
	if mode == nil {
		mode = func() string { return constraints.StorageHybrid }
	}
	return &Loader{repo: repo, dir: dir, mode: mode}
}

func (l *Loader) Resolve(ctx context.Context, eventType, channel string) (*Resolved, error) {
	tpl, err := l.repo.Find(ctx, eventType, channel)
	if err != nil {
		return nil, fmt.Errorf("load template %s/%s: %w", eventType, channel, err)
	}

	mode := l.mode()
	key := eventType
	var dbSubject, dbBody string
	if tpl != nil {
		if constraints.IsValidStorageMode(tpl.StorageMode) {
			mode = tpl.StorageMode
		}
		if tpl.BodyTemplateKey != "" {
			key = tpl.BodyTemplateKey
		}
		dbSubject, dbBody = tpl.SubjectTemplate, tpl.BodyTemplate
	}

	res := &Resolved{Subject: dbSubject}
	switch mode {
	case constraints.StorageDatabase:
		if dbBody == "" {
			return nil, fmt.Errorf("%w: %s/%s in database", ErrTemplateNotFound, eventType, channel)
		}
		res.Body, res.Source = dbBody, SourceDatabase

	case constraints.StorageFilesystem:
		body, err := l.readFile(channel, key)
		if err != nil {
			return nil, err
		}
		res.Body, res.Source = body, SourceFilesystem

	default:
		switch {
		case dbBody != "":
			res.Body, res.Source = dbBody, SourceDatabase
		case channel != constraints.ChannelEmail:
			return nil, fmt.Errorf("%w: %s/%s", ErrDatabaseTemplateRequired, eventType, channel)
		default:
			if body, err := l.readFile(channel, key); err == nil {
				res.Body, res.Source = body, SourceFilesystem
			} else if body, err := readDefault(channel, eventType); err == nil {
				res.Body, res.Source = body, SourceDefault
			} else {
				return nil, fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, eventType, channel)
			}
		}
	}

	if res.Subject == "" {
		res.Subject = defaultSubjects[eventType]
	}
	return res, nil
}

func (l *Loader) readFile(channel, key string) (string, error) {
	if l.dir == "" {
		return "", fmt.Errorf("%w: no template directory configured", ErrTemplateNotFound)
	}
	p := filepath.Join(l.dir, filepath.Base(channel), filepath.Base(key)+".mustache")
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, p, err)
	}
	return string(b), nil
}

func readDefault(channel, eventType string) (string, error) {
	b, err := defaults.ReadFile(path.Join("defaults", channel, eventType+".mustache"))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
