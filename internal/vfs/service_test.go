package vfs_test

import (
	"context"
	"errors"
	"testing"

	"vfs-go/internal/vfs"
)

func TestService_CreateAndRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	folder := f.mkdir(t, "/docs")
	if folder.RootPath != "/docs/" {
		t.Errorf("folder path = %q, want /docs/", folder.RootPath)
	}
	if folder.State() != vfs.StateNew || folder.ProjectLastModified != f.project.ID {
		t.Errorf("folder state = %v, marker %d", folder.State(), folder.ProjectLastModified)
	}

	f.put(t, "/docs/readme.txt", "read me")
	res, err := f.svc.ReadResource(ctx, f.project, "/docs/readme.txt")
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	if string(res.Content) != "read me" || res.Length != 7 {
		t.Errorf("ReadResource() = %q (%d bytes)", res.Content, res.Length)
	}
	if res.UserCreated != "u1" || !res.DateCreated.Equal(f.clock.Now()) {
		t.Errorf("created by %q at %v", res.UserCreated, res.DateCreated)
	}

	if _, err := f.svc.CreateFile(ctx, f.project, "/docs/readme.txt", vfs.TypePlain, nil, f.user); !errors.Is(err, vfs.ErrAlreadyExists) {
		t.Errorf("CreateFile() duplicate error = %v, want ErrAlreadyExists", err)
	}
	if _, err := f.svc.CreateFile(ctx, f.project, "/docs/sub", vfs.TypeFolder, nil, f.user); !errors.Is(err, vfs.ErrInvalidResource) {
		t.Errorf("CreateFile() folder type error = %v, want ErrInvalidResource", err)
	}
}

func TestService_ListChildren(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mkdir(t, "/docs/")
	f.put(t, "/docs/b.txt", "b")
	f.mkdir(t, "/docs/a/")
	f.put(t, "/docs/a/nested.txt", "n")

	children, err := f.svc.ListChildren(ctx, f.project, "/docs")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	var paths []string
	for _, c := range children {
		paths = append(paths, c.RootPath)
	}
	if len(paths) != 2 || paths[0] != "/docs/a/" || paths[1] != "/docs/b.txt" {
		t.Errorf("ListChildren() = %v, want [/docs/a/ /docs/b.txt]", paths)
	}

	if _, err := f.svc.ListChildren(ctx, f.project, "/missing/"); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("ListChildren() missing error = %v, want ErrNotFound", err)
	}
}

func TestService_WriteFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.put(t, "/a.txt", "v1")
	f.publish(t, f.request())

	res, err := f.svc.WriteFile(ctx, f.project, "/a.txt", []byte("version 2"), f.user)
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if res.State() != vfs.StateChanged {
		t.Errorf("state = %v, want changed", res.State())
	}
	if res.Length != 9 {
		t.Errorf("Length = %d, want 9", res.Length)
	}

	f.mkdir(t, "/dir/")
	if _, err := f.svc.WriteFile(ctx, f.project, "/dir/", []byte("x"), f.user); err == nil {
		t.Error("WriteFile() on a folder succeeded")
	}
}

func TestService_MoveResource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mkdir(t, "/old/")
	f.put(t, "/old/a.txt", "a")
	f.put(t, "/taken.txt", "t")

	if err := f.svc.MoveResource(ctx, f.project, "/old/", "/new", f.user); err != nil {
		t.Fatalf("MoveResource() error = %v", err)
	}
	moved, err := f.svc.ReadResource(ctx, f.project, "/new/a.txt")
	if err != nil {
		t.Fatalf("ReadResource(moved) error = %v", err)
	}
	if string(moved.Content) != "a" {
		t.Errorf("moved content = %q", moved.Content)
	}
	if _, err := f.db.ReadResource(ctx, f.project, "/old/a.txt", true); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("old path error = %v, want ErrNotFound", err)
	}

	if err := f.svc.MoveResource(ctx, f.project, "/new/a.txt", "/taken.txt", f.user); !errors.Is(err, vfs.ErrAlreadyExists) {
		t.Errorf("MoveResource() onto existing error = %v, want ErrAlreadyExists", err)
	}
}

func TestService_DeleteResource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mkdir(t, "/docs/")
	f.put(t, "/docs/published.txt", "p")
	f.publish(t, f.request())
	f.put(t, "/docs/draft.txt", "d")

	if err := f.svc.DeleteResource(ctx, f.project, "/docs/", f.user); err != nil {
		t.Fatalf("DeleteResource() error = %v", err)
	}

	published, err := f.db.ReadResource(ctx, f.project, "/docs/published.txt", true)
	if err != nil {
		t.Fatalf("ReadResource(published) error = %v", err)
	}
	if published.State() != vfs.StateDeleted {
		t.Errorf("published file state = %v, want deleted", published.State())
	}
	if _, err := f.db.ReadResource(ctx, f.project, "/docs/draft.txt", true); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("unpublished file error = %v, want ErrNotFound", err)
	}

	if err := f.svc.DeleteResource(ctx, f.project, "/", f.user); err == nil {
		t.Error("DeleteResource(/) succeeded")
	}
}

func TestService_SetProperty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.put(t, "/a.txt", "a")
	f.publish(t, f.request())

	tests := []struct {
		name          string
		prop          vfs.Property
		wantStructure vfs.State
		wantResource  vfs.State
	}{
		{"structure value", vfs.NewProperty("Title", "Hello", ""), vfs.StateChanged, vfs.StateUnchanged},
		{"resource value", vfs.NewProperty("Keywords", "", "a,b"), vfs.StateUnchanged, vfs.StateChanged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.svc.SetProperty(ctx, f.project, "/a.txt", tt.prop); err != nil {
				t.Fatalf("SetProperty() error = %v", err)
			}
			res, err := f.db.ReadResource(ctx, f.project, "/a.txt", false)
			if err != nil {
				t.Fatalf("ReadResource() error = %v", err)
			}
			if res.StructureState != tt.wantStructure || res.ResourceState != tt.wantResource {
				t.Errorf("states = %v/%v, want %v/%v", res.StructureState, res.ResourceState, tt.wantStructure, tt.wantResource)
			}
			f.publish(t, f.request())
		})
	}

	props, err := f.svc.ReadProperties(ctx, f.project, "/a.txt")
	if err != nil {
		t.Fatalf("ReadProperties() error = %v", err)
	}
	m := vfs.PropertyMap(props)
	if m["Title"].Value() != "Hello" || m["Keywords"].ResourceValue != "a,b" {
		t.Errorf("ReadProperties() = %+v", props)
	}

	if err := f.svc.SetProperty(ctx, f.project, "/a.txt", vfs.DeleteProperty("Title")); err != nil {
		t.Fatalf("SetProperty(delete) error = %v", err)
	}
	props, err = f.svc.ReadProperties(ctx, f.project, "/a.txt")
	if err != nil {
		t.Fatalf("ReadProperties() error = %v", err)
	}
	if _, ok := vfs.PropertyMap(props)["Title"]; ok {
		t.Errorf("Title still present after delete: %+v", props)
	}
}

func TestService_Relations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.put(t, "/index.html", "<a href=/about.html>")
	f.put(t, "/about.html", "about")

	if err := f.svc.AddRelation(ctx, f.project, "/index.html", "/about.html", vfs.RelationHyperlink); err != nil {
		t.Fatalf("AddRelation() error = %v", err)
	}
	if err := f.svc.AddRelation(ctx, f.project, "/index.html", "/missing.html", vfs.RelationHyperlink); err != nil {
		t.Fatalf("AddRelation() error = %v", err)
	}

	broken, err := f.svc.BrokenLinks(ctx, f.project)
	if err != nil {
		t.Fatalf("BrokenLinks() error = %v", err)
	}
	if len(broken) != 1 || broken[0].TargetPath != "/missing.html" {
		t.Errorf("BrokenLinks() = %+v", broken)
	}

	f.publish(t, f.request())
	online, err := f.svc.BrokenLinks(ctx, vfs.OnlineProject())
	if err != nil {
		t.Fatalf("BrokenLinks(online) error = %v", err)
	}
	if len(online) != 1 || online[0].SourcePath != "/index.html" {
		t.Errorf("BrokenLinks(online) = %+v", online)
	}
}
