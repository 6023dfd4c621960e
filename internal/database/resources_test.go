package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vfs-go/internal/vfs"
)

func TestSQLDatabase_CreateResource(t *testing.T) {
	ctx := context.Background()

	t.Run("offline create is NEW and online create is UNCHANGED", func(t *testing.T) {
		db := newTestDB(t)

		off := mustCreate(t, db, offline(), newFile("/a.txt", "hi"), []byte("hi"))
		if off.State() != vfs.StateNew {
			t.Errorf("offline state = %v, want new", off.State())
		}
		if off.StructureID == "" || off.ResourceID == "" || off.ContentID == "" {
			t.Errorf("ids not assigned: %+v", off)
		}

		on := mustCreate(t, db, vfs.OnlineProject(), newFile("/b.txt", "hi"), []byte("hi"))
		if on.State() != vfs.StateUnchanged {
			t.Errorf("online state = %v, want unchanged", on.State())
		}
	})

	t.Run("folders are returned with a trailing separator", func(t *testing.T) {
		db := newTestDB(t)

		folder := mustCreate(t, db, offline(), newFolder("/docs"), nil)
		if folder.RootPath != "/docs/" {
			t.Errorf("RootPath = %q, want /docs/", folder.RootPath)
		}
		read, err := db.ReadResource(ctx, offline(), "/docs", false)
		if err != nil {
			t.Fatalf("ReadResource() error = %v", err)
		}
		if read.StructureID != folder.StructureID {
			t.Errorf("ReadResource() = %v, want %v", read, folder)
		}
	})

	t.Run("live collision fails", func(t *testing.T) {
		db := newTestDB(t)
		mustCreate(t, db, offline(), newFile("/a.txt", ""), nil)

		_, err := db.CreateResource(ctx, offline(), newFile("/a.txt", ""), nil)
		if !errors.Is(err, vfs.ErrAlreadyExists) {
			t.Errorf("CreateResource() error = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("missing parent fails", func(t *testing.T) {
		db := newTestDB(t)

		_, err := db.CreateResource(ctx, offline(), newFile("/nope/a.txt", ""), nil)
		if !errors.Is(err, vfs.ErrNotFound) {
			t.Errorf("CreateResource() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("deleted parent fails", func(t *testing.T) {
		db := newTestDB(t)
		folder := mustCreate(t, db, offline(), newFolder("/gone"), nil)
		if err := db.WriteResource(ctx, offline(), folder.WithState(vfs.StateDeleted), vfs.ChangeNothing); err != nil {
			t.Fatalf("WriteResource() error = %v", err)
		}

		_, err := db.CreateResource(ctx, offline(), newFile("/gone/a.txt", ""), nil)
		if !errors.Is(err, vfs.ErrParentDeleted) {
			t.Errorf("CreateResource() error = %v, want ErrParentDeleted", err)
		}
	})

	t.Run("invalid resources are rejected", func(t *testing.T) {
		db := newTestDB(t)
		tests := []struct {
			name string
			res  vfs.Resource
		}{
			{"path too long", newFile("/"+strings.Repeat("x", vfs.MaxPathLength), "")},
			{"folder with length", vfs.Resource{RootPath: "/f/", Type: vfs.TypeFolder, Length: 3}},
			{"negative file length", vfs.Resource{RootPath: "/f", Type: vfs.TypePlain, Length: -1}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := db.CreateResource(ctx, offline(), tc.res, nil)
				if !errors.Is(err, vfs.ErrInvalidResource) {
					t.Errorf("CreateResource() error = %v, want ErrInvalidResource", err)
				}
			})
		}
	})

	t.Run("deleted collision is purged and its structure id reused", func(t *testing.T) {
		bus := &recordingBus{}
		db := newTestDB(t, WithEventBus(bus))

		old := mustCreate(t, db, offline(), newFile("/a.txt", "old"), []byte("old"))
		if err := db.WritePropertyObject(ctx, offline(), old, vfs.NewProperty("title", "s", "r")); err != nil {
			t.Fatalf("WritePropertyObject() error = %v", err)
		}
		if err := db.WriteResource(ctx, offline(), old.WithState(vfs.StateDeleted), vfs.ChangeNothing); err != nil {
			t.Fatalf("WriteResource() error = %v", err)
		}

		created := mustCreate(t, db, offline(), newFile("/a.txt", "new"), []byte("new"))
		if created.StructureID != old.StructureID {
			t.Errorf("StructureID = %s, want reused %s", created.StructureID, old.StructureID)
		}
		if created.State() != vfs.StateChanged {
			t.Errorf("state = %v, want changed", created.State())
		}

		props, err := db.ReadPropertyObjects(ctx, offline(), created)
		if err != nil {
			t.Fatalf("ReadPropertyObjects() error = %v", err)
		}
		if len(props) != 0 {
			t.Errorf("properties of purged resource survived: %v", props)
		}

		if len(bus.events) != 2 {
			t.Fatalf("fired %d events, want 2", len(bus.events))
		}
		if bus.events[0].Type != vfs.EventResourcesModified || bus.events[1].Type != vfs.EventResourceAndPropertiesModified {
			t.Errorf("events = %v, %v", bus.events[0].Type, bus.events[1].Type)
		}
	})
}

func TestSQLDatabase_Siblings(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	mustCreate(t, db, offline(), newFolder("/x"), nil)
	mustCreate(t, db, offline(), newFolder("/y"), nil)
	file := mustCreate(t, db, offline(), newFile("/x/a.txt", "abc"), []byte("abc"))

	sib := file.WithPath("/y/a.txt")
	sib.StructureID = ""
	sib = sib.WithFlags(file.Flags | vfs.FlagLabeled)
	created, err := db.CreateSibling(ctx, offline(), sib)
	if err != nil {
		t.Fatalf("CreateSibling() error = %v", err)
	}
	if created.SiblingCount != 2 {
		t.Errorf("SiblingCount = %d, want 2", created.SiblingCount)
	}
	if !created.IsLabeled() {
		t.Error("sibling in another folder is not labeled")
	}

	n, err := db.CountSiblings(ctx, offline(), file.ResourceID)
	if err != nil {
		t.Fatalf("CountSiblings() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountSiblings() = %d, want 2", n)
	}

	siblings, err := db.ReadSiblings(ctx, offline(), file, false)
	if err != nil {
		t.Fatalf("ReadSiblings() error = %v", err)
	}
	if len(siblings) != 2 || siblings[0].RootPath != "/x/a.txt" || siblings[1].RootPath != "/y/a.txt" {
		t.Errorf("ReadSiblings() = %v", siblings)
	}

	content, err := db.ReadContent(ctx, offline(), created.ResourceID)
	if err != nil {
		t.Fatalf("ReadContent() error = %v", err)
	}
	if string(content) != "abc" {
		t.Errorf("sibling content = %q, want abc", content)
	}

	if err := db.RemoveFile(ctx, offline(), created); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}
	remaining, err := db.ReadResource(ctx, offline(), "/x/a.txt", false)
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	if remaining.SiblingCount != 1 {
		t.Errorf("SiblingCount after removal = %d, want 1", remaining.SiblingCount)
	}
	if _, err := db.ReadContent(ctx, offline(), file.ResourceID); err != nil {
		t.Errorf("content removed while a sibling remains: %v", err)
	}

	t.Run("sibling of unknown resource fails", func(t *testing.T) {
		orphan := newFile("/x/b.txt", "")
		orphan.ResourceID = "no-such-resource"
		_, err := db.CreateSibling(ctx, offline(), orphan)
		if !errors.Is(err, vfs.ErrNotFound) {
			t.Errorf("CreateSibling() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSQLDatabase_ReadDeleted(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	file := mustCreate(t, db, offline(), newFile("/a.txt", ""), nil)
	if err := db.WriteResource(ctx, offline(), file.WithState(vfs.StateDeleted), vfs.ChangeNothing); err != nil {
		t.Fatalf("WriteResource() error = %v", err)
	}

	_, err := db.ReadResource(ctx, offline(), "/a.txt", false)
	if !errors.Is(err, vfs.ErrDeleted) {
		t.Errorf("ReadResource() error = %v, want ErrDeleted", err)
	}
	got, err := db.ReadResource(ctx, offline(), "/a.txt", true)
	if err != nil {
		t.Fatalf("ReadResource(includeDeleted) error = %v", err)
	}
	if got.State() != vfs.StateDeleted {
		t.Errorf("state = %v, want deleted", got.State())
	}
}

func TestSQLDatabase_ReadChildResources(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	parent := mustCreate(t, db, offline(), newFolder("/p"), nil)
	mustCreate(t, db, offline(), newFile("/p/b.txt", ""), nil)
	mustCreate(t, db, offline(), newFile("/p/A.txt", ""), nil)
	mustCreate(t, db, offline(), newFolder("/p/z"), nil)
	mustCreate(t, db, offline(), newFile("/p/z/deep.txt", ""), nil)

	tests := []struct {
		name           string
		folders, files bool
		want           []string
	}{
		{"folders and files", true, true, []string{"/p/z/", "/p/A.txt", "/p/b.txt"}},
		{"folders only", true, false, []string{"/p/z/"}},
		{"files only", false, true, []string{"/p/A.txt", "/p/b.txt"}},
		{"neither", false, false, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			children, err := db.ReadChildResources(ctx, offline(), parent, tc.folders, tc.files)
			if err != nil {
				t.Fatalf("ReadChildResources() error = %v", err)
			}
			var got []string
			for _, c := range children {
				got = append(got, c.RootPath)
			}
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Errorf("ReadChildResources() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSQLDatabase_ReadResourceTree(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	mustCreate(t, db, offline(), newFolder("/a"), nil)
	mustCreate(t, db, offline(), newFile("/a/one.txt", ""), nil)
	mustCreate(t, db, offline(), newFolder("/a_b"), nil)
	mustCreate(t, db, vfs.OnlineProject(), newFolder("/live"), nil)

	project := offline()
	stamped := newFile("/a/two.txt", "")
	stamped.ProjectLastModified = project.ID
	mustCreate(t, db, project, stamped, nil)

	paths := func(res []vfs.Resource) string {
		var out []string
		for _, r := range res {
			out = append(out, r.RootPath)
		}
		return strings.Join(out, ",")
	}

	tests := []struct {
		name   string
		filter vfs.TreeFilter
		want   string
	}{
		{"subtree does not match siblings sharing a prefix", vfs.TreeFilter{ParentPath: "/a/"}, "/a/one.txt,/a/two.txt"},
		{"changed folders", vfs.ChangedFolders(), "/a/,/a_b/"},
		{"changed files of project", func() vfs.TreeFilter { f := vfs.ChangedFiles(); f.ProjectID = project.ID; return f }(), "/a/two.txt"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := db.ReadResourceTree(ctx, offline(), tc.filter)
			if err != nil {
				t.Fatalf("ReadResourceTree() error = %v", err)
			}
			if got := paths(res); got != tc.want {
				t.Errorf("ReadResourceTree() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSQLDatabase_WriteContent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	file := mustCreate(t, db, offline(), newFile("/a.txt", "one"), []byte("one"))
	if err := db.WriteContent(ctx, offline(), file.ResourceID, []byte("three")); err != nil {
		t.Fatalf("WriteContent() error = %v", err)
	}

	read, err := db.ReadFile(ctx, offline(), file.StructureID, false)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(read.Content) != "three" || read.Length != 5 {
		t.Errorf("ReadFile() content = %q length = %d, want three/5", read.Content, read.Length)
	}

	if err := db.WriteContent(ctx, offline(), "missing", nil); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("WriteContent(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLDatabase_MoveResource(t *testing.T) {
	ctx := context.Background()

	t.Run("moves and marks changed", func(t *testing.T) {
		db := newTestDB(t)
		mustCreate(t, db, offline(), newFolder("/dst"), nil)
		file := mustCreate(t, db, offline(), newFile("/a.txt", ""), nil)
		if err := db.WriteResourceState(ctx, offline(), file.Published(), vfs.ChangeAll); err != nil {
			t.Fatalf("WriteResourceState() error = %v", err)
		}

		if err := db.MoveResource(ctx, offline(), file.Published(), "/dst/a.txt"); err != nil {
			t.Fatalf("MoveResource() error = %v", err)
		}
		moved, err := db.ReadResourceByID(ctx, offline(), file.StructureID, false)
		if err != nil {
			t.Fatalf("ReadResourceByID() error = %v", err)
		}
		if moved.RootPath != "/dst/a.txt" {
			t.Errorf("RootPath = %s, want /dst/a.txt", moved.RootPath)
		}
		if moved.StructureState != vfs.StateChanged {
			t.Errorf("StructureState = %v, want changed", moved.StructureState)
		}
		if moved.ProjectLastModified != offline().ID {
			t.Errorf("ProjectLastModified = %d, want %d", moved.ProjectLastModified, offline().ID)
		}
	})

	t.Run("conflict with online occupant moved elsewhere", func(t *testing.T) {
		db := newTestDB(t)
		ghost := mustCreate(t, db, offline(), newFile("/b.txt", ""), nil)
		if err := db.PublishResource(ctx, vfs.OnlineProject(), ghost, true); err != nil {
			t.Fatalf("PublishResource() error = %v", err)
		}
		if err := db.MoveResource(ctx, offline(), ghost, "/c.txt"); err != nil {
			t.Fatalf("MoveResource() error = %v", err)
		}

		other := mustCreate(t, db, offline(), newFile("/x.txt", ""), nil)
		err := db.MoveResource(ctx, offline(), other, "/b.txt")
		var conflict *vfs.MoveConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("MoveResource() error = %v, want MoveConflictError", err)
		}
		if conflict.MovedTo != "/c.txt" {
			t.Errorf("MovedTo = %s, want /c.txt", conflict.MovedTo)
		}
	})
}

func TestSQLDatabase_RemoveFolder(t *testing.T) {
	ctx := context.Background()

	t.Run("non-empty folder lists children", func(t *testing.T) {
		db := newTestDB(t)
		folder := mustCreate(t, db, offline(), newFolder("/f"), nil)
		mustCreate(t, db, offline(), newFile("/f/a.txt", ""), nil)
		mustCreate(t, db, offline(), newFile("/f/b.txt", ""), nil)

		err := db.RemoveFolder(ctx, offline(), folder)
		var nonEmpty *vfs.NonEmptyFolderError
		if !errors.As(err, &nonEmpty) {
			t.Fatalf("RemoveFolder() error = %v, want NonEmptyFolderError", err)
		}
		if !strings.Contains(err.Error(), "[/f/a.txt], [/f/b.txt]") {
			t.Errorf("error = %q, want children listed", err.Error())
		}
	})

	t.Run("online children moved away offline do not block", func(t *testing.T) {
		db := newTestDB(t)
		folder := mustCreate(t, db, offline(), newFolder("/f"), nil)
		child := mustCreate(t, db, offline(), newFile("/f/a.txt", ""), nil)
		for _, res := range []vfs.Resource{folder, child} {
			if err := db.PublishResource(ctx, vfs.OnlineProject(), res, true); err != nil {
				t.Fatalf("PublishResource() error = %v", err)
			}
		}
		if err := db.MoveResource(ctx, offline(), child, "/a.txt"); err != nil {
			t.Fatalf("MoveResource() error = %v", err)
		}

		onlineFolder, err := db.ReadResource(ctx, vfs.OnlineProject(), "/f/", false)
		if err != nil {
			t.Fatalf("ReadResource() error = %v", err)
		}
		if err := db.RemoveFolder(ctx, vfs.OnlineProject(), onlineFolder); err != nil {
			t.Errorf("RemoveFolder() error = %v", err)
		}
	})
}

func TestSQLDatabase_WriteResource(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	project := offline()

	file := mustCreate(t, db, project, newFile("/a.txt", ""), nil)
	if err := db.WriteResourceState(ctx, project, file.Published(), vfs.ChangeAll); err != nil {
		t.Fatalf("WriteResourceState() error = %v", err)
	}

	tests := []struct {
		name          string
		mode          vfs.ChangeMode
		wantResource  vfs.State
		wantStructure vfs.State
	}{
		{"nothing", vfs.ChangeNothing, vfs.StateUnchanged, vfs.StateUnchanged},
		{"resource state", vfs.ChangeResourceState, vfs.StateChanged, vfs.StateUnchanged},
		{"structure state", vfs.ChangeStructureState, vfs.StateUnchanged, vfs.StateChanged},
		{"all", vfs.ChangeAll, vfs.StateChanged, vfs.StateChanged},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := db.WriteResourceState(ctx, project, file.Published(), vfs.ChangeAll); err != nil {
				t.Fatalf("WriteResourceState() error = %v", err)
			}
			if err := db.WriteResource(ctx, project, file.Published(), tc.mode); err != nil {
				t.Fatalf("WriteResource() error = %v", err)
			}
			got, err := db.ReadResourceByID(ctx, project, file.StructureID, false)
			if err != nil {
				t.Fatalf("ReadResourceByID() error = %v", err)
			}
			if got.ResourceState != tc.wantResource || got.StructureState != tc.wantStructure {
				t.Errorf("states = %v/%v, want %v/%v", got.ResourceState, got.StructureState, tc.wantResource, tc.wantStructure)
			}
		})
	}

	t.Run("new stays new", func(t *testing.T) {
		fresh := mustCreate(t, db, project, newFile("/new.txt", ""), nil)
		if err := db.WriteResource(ctx, project, fresh, vfs.ChangeAll); err != nil {
			t.Fatalf("WriteResource() error = %v", err)
		}
		got, err := db.ReadResourceByID(ctx, project, fresh.StructureID, false)
		if err != nil {
			t.Fatalf("ReadResourceByID() error = %v", err)
		}
		if got.State() != vfs.StateNew {
			t.Errorf("state = %v, want new", got.State())
		}
	})

	t.Run("online state writes are ignored", func(t *testing.T) {
		live := mustCreate(t, db, vfs.OnlineProject(), newFile("/live.txt", ""), nil)
		if err := db.WriteResourceState(ctx, vfs.OnlineProject(), live.WithState(vfs.StateChanged), vfs.ChangeAll); err != nil {
			t.Fatalf("WriteResourceState() error = %v", err)
		}
		got, err := db.ReadResourceByID(ctx, vfs.OnlineProject(), live.StructureID, false)
		if err != nil {
			t.Fatalf("ReadResourceByID() error = %v", err)
		}
		if got.State() != vfs.StateUnchanged {
			t.Errorf("online state = %v, want unchanged", got.State())
		}
	})
}

func TestSQLDatabase_PublishResource(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	file := mustCreate(t, db, offline(), newFile("/a.txt", "v1"), []byte("v1"))
	file.Content = []byte("v1")
	if err := db.PublishResource(ctx, vfs.OnlineProject(), file, true); err != nil {
		t.Fatalf("PublishResource() error = %v", err)
	}

	online, err := db.ReadFile(ctx, vfs.OnlineProject(), file.StructureID, false)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if online.State() != vfs.StateUnchanged || string(online.Content) != "v1" {
		t.Errorf("online = %v %q, want unchanged v1", online.State(), online.Content)
	}

	t.Run("different structure at the path collides", func(t *testing.T) {
		other := file
		other.StructureID = "other"
		err := db.PublishResource(ctx, vfs.OnlineProject(), other, true)
		if !errors.Is(err, vfs.ErrAlreadyExists) {
			t.Errorf("PublishResource() error = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("parent resolves to the online folder at the parent path", func(t *testing.T) {
		onlineFolder := mustCreate(t, db, vfs.OnlineProject(), newFolder("/docs"), nil)
		mustCreate(t, db, offline(), newFolder("/docs"), nil)
		child := mustCreate(t, db, offline(), newFile("/docs/b.txt", ""), nil)
		if child.ParentID == onlineFolder.StructureID {
			t.Fatalf("offline and online folders share structure id %s", child.ParentID)
		}
		if err := db.PublishResource(ctx, vfs.OnlineProject(), child, true); err != nil {
			t.Fatalf("PublishResource() error = %v", err)
		}
		published, err := db.ReadResource(ctx, vfs.OnlineProject(), "/docs/b.txt", false)
		if err != nil {
			t.Fatalf("ReadResource() error = %v", err)
		}
		if published.ParentID != onlineFolder.StructureID {
			t.Errorf("ParentID = %s, want %s", published.ParentID, onlineFolder.StructureID)
		}
	})

	t.Run("missing online parent fails", func(t *testing.T) {
		mustCreate(t, db, offline(), newFolder("/drafts"), nil)
		orphan := mustCreate(t, db, offline(), newFile("/drafts/c.txt", ""), nil)
		err := db.PublishResource(ctx, vfs.OnlineProject(), orphan, true)
		if !errors.Is(err, vfs.ErrNotFound) {
			t.Errorf("PublishResource() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("offline target is rejected", func(t *testing.T) {
		if err := db.PublishResource(ctx, offline(), file, true); err == nil {
			t.Error("PublishResource() into offline expected error, got nil")
		}
	})
}

type recordingBus struct {
	events []vfs.Event
}

func (b *recordingBus) Fire(_ context.Context, e vfs.Event) {
	b.events = append(b.events, e)
}
