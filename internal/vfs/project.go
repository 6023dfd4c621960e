package vfs

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// OnlineProjectID is the id of the live project every publish targets.
const OnlineProjectID = 1

// ProjectType determines publish eligibility rules.
type ProjectType int

const (
	ProjectNormal        ProjectType = 0
	ProjectTemporary     ProjectType = 1
	ProjectDirectPublish ProjectType = 2
)

func (t ProjectType) String() string {
	switch t {
	case ProjectNormal:
		return "normal"
	case ProjectTemporary:
		return "temporary"
	case ProjectDirectPublish:
		return "direct-publish"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Project owns a set of resource-path prefixes defining its scope.
type Project struct {
	ID            int
	Name          string
	Description   string
	Type          ProjectType
	ResourcePaths []string
	CreatedAt     time.Time
}

// OnlineProject returns the live project.
func OnlineProject() *Project {
	return &Project{ID: OnlineProjectID, Name: "Online", Description: "The live tree"}
}

func (p *Project) IsOnline() bool { return p.ID == OnlineProjectID }

// Contains reports whether path falls inside one of the project's resource paths.
func (p *Project) Contains(path string) bool {
	for _, prefix := range p.ResourcePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// User identifies the principal running an operation.
type User struct {
	ID   string
	Name string
}

// UserDirectory resolves display names for user ids. Backups keep names
// because ids may be deleted later.
type UserDirectory interface {
	UserName(ctx context.Context, id string) (string, error)
}

// StaticUserDirectory is a map-backed UserDirectory. Unknown ids resolve to
// themselves.
type StaticUserDirectory map[string]string

func (d StaticUserDirectory) UserName(_ context.Context, id string) (string, error) {
	if name, ok := d[id]; ok {
		return name, nil
	}
	return id, nil
}
