package vfs

import (
	"errors"
	"strings"
	"testing"
)

func TestResource_State(t *testing.T) {
	tests := []struct {
		name      string
		structure State
		resource  State
		want      State
	}{
		{"both unchanged", StateUnchanged, StateUnchanged, StateUnchanged},
		{"structure wins", StateDeleted, StateChanged, StateDeleted},
		{"resource wins", StateUnchanged, StateChanged, StateChanged},
		{"new", StateNew, StateNew, StateNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resource{StructureState: tt.structure, ResourceState: tt.resource}
			if got := r.State(); got != tt.want {
				t.Errorf("State() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResource_Validate(t *testing.T) {
	tests := []struct {
		name    string
		res     Resource
		wantErr bool
	}{
		{"folder", Resource{RootPath: "/a/", Type: TypeFolder, Length: FolderLength}, false},
		{"file", Resource{RootPath: "/a/b.txt", Type: TypePlain, Length: 3}, false},
		{"empty file", Resource{RootPath: "/a/b.txt", Type: TypePlain}, false},
		{"folder with length", Resource{RootPath: "/a/", Type: TypeFolder, Length: 0}, true},
		{"negative file length", Resource{RootPath: "/a.txt", Type: TypeBinary, Length: -1}, true},
		{"relative path", Resource{RootPath: "a.txt", Type: TypePlain}, true},
		{"path too long", Resource{RootPath: "/" + strings.Repeat("x", MaxPathLength), Type: TypePlain}, true},
		{"folder at limit", Resource{RootPath: "/" + strings.Repeat("x", MaxPathLength-1) + "/", Type: TypeFolder, Length: FolderLength}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.res.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidResource) {
				t.Errorf("Validate() error = %v, want ErrInvalidResource", err)
			}
		})
	}
}

func TestResource_Derivations(t *testing.T) {
	orig := Resource{RootPath: "/a/b.txt", Type: TypePlain, StructureState: StateNew, ResourceState: StateChanged, ProjectLastModified: 2}

	published := orig.Published()
	if published.StructureState != StateUnchanged || published.ResourceState != StateUnchanged {
		t.Errorf("Published() states = %v/%v", published.StructureState, published.ResourceState)
	}
	if orig.StructureState != StateNew {
		t.Error("Published() modified the receiver")
	}

	withContent := orig.WithContent([]byte("hello"))
	if withContent.Length != 5 {
		t.Errorf("WithContent() Length = %d, want 5", withContent.Length)
	}

	labeled := orig.WithFlags(FlagLabeled)
	if !labeled.IsLabeled() || orig.IsLabeled() {
		t.Error("WithFlags() did not produce an independent labeled copy")
	}

	if got := orig.WithProjectLastModified(0).ProjectLastModified; got != 0 {
		t.Errorf("WithProjectLastModified(0) = %d", got)
	}
}

func TestResource_IsTemporary(t *testing.T) {
	tests := []struct {
		res  Resource
		want bool
	}{
		{Resource{RootPath: "/a/~draft.html", Type: TypePlain}, true},
		{Resource{RootPath: "/a/draft~.html", Type: TypePlain}, false},
		{Resource{RootPath: "/a/~folder/", Type: TypeFolder, Length: FolderLength}, false},
	}
	for _, tt := range tests {
		t.Run(tt.res.RootPath, func(t *testing.T) {
			if got := tt.res.IsTemporary(); got != tt.want {
				t.Errorf("IsTemporary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	t.Run("ParentFolder", func(t *testing.T) {
		tests := map[string]string{
			"/":          "",
			"/a/":        "/",
			"/a":         "/",
			"/a/b.txt":   "/a/",
			"/a/b/c/":    "/a/b/",
			"/a/b/c.txt": "/a/b/",
		}
		for path, want := range tests {
			if got := ParentFolder(path); got != want {
				t.Errorf("ParentFolder(%q) = %q, want %q", path, got, want)
			}
		}
	})

	t.Run("ResourceName", func(t *testing.T) {
		tests := map[string]string{
			"/":        "/",
			"/a/":      "a/",
			"/a/b.txt": "b.txt",
			"/a/b/c/":  "c/",
		}
		for path, want := range tests {
			if got := ResourceName(path); got != want {
				t.Errorf("ResourceName(%q) = %q, want %q", path, got, want)
			}
		}
	})

	t.Run("separators", func(t *testing.T) {
		if got := RemoveTrailingSeparator("/"); got != "/" {
			t.Errorf("RemoveTrailingSeparator(/) = %q", got)
		}
		if got := RemoveTrailingSeparator("/a/"); got != "/a" {
			t.Errorf("RemoveTrailingSeparator(/a/) = %q", got)
		}
		if got := AddTrailingSeparator("/a"); got != "/a/" {
			t.Errorf("AddTrailingSeparator(/a) = %q", got)
		}
		if got := AddTrailingSeparator("/a/"); got != "/a/" {
			t.Errorf("AddTrailingSeparator(/a/) = %q", got)
		}
	})

	t.Run("IsDescendant", func(t *testing.T) {
		tests := []struct {
			path, folder string
			want         bool
		}{
			{"/a/b.txt", "/a/", true},
			{"/a/b/c.txt", "/a", true},
			{"/a/", "/a/", true},
			{"/ab.txt", "/a", false},
			{"/b/c.txt", "/a/", false},
		}
		for _, tt := range tests {
			if got := IsDescendant(tt.path, tt.folder); got != tt.want {
				t.Errorf("IsDescendant(%q, %q) = %v, want %v", tt.path, tt.folder, got, tt.want)
			}
		}
	})
}

func TestSortFoldersFirst(t *testing.T) {
	resources := []Resource{
		{RootPath: "/b.txt", Type: TypePlain},
		{RootPath: "/Z/", Type: TypeFolder},
		{RootPath: "/A.txt", Type: TypePlain},
		{RootPath: "/a/", Type: TypeFolder},
	}
	SortFoldersFirst(resources)

	want := []string{"/a/", "/Z/", "/A.txt", "/b.txt"}
	for i, r := range resources {
		if r.RootPath != want[i] {
			t.Errorf("position %d = %s, want %s", i, r.RootPath, want[i])
		}
	}
}

func TestProject_Contains(t *testing.T) {
	p := &Project{ID: 2, ResourcePaths: []string{"/sites/", "/system/modules/"}}
	tests := map[string]bool{
		"/sites/index.html":  true,
		"/system/modules/a/": true,
		"/system/":           false,
		"/shared/logo.png":   false,
	}
	for path, want := range tests {
		if got := p.Contains(path); got != want {
			t.Errorf("Contains(%q) = %v, want %v", path, got, want)
		}
	}
	if OnlineProject().ID != OnlineProjectID || !OnlineProject().IsOnline() {
		t.Error("OnlineProject() is not online")
	}
	if p.IsOnline() {
		t.Error("offline project reports online")
	}
}

func TestProperty_Value(t *testing.T) {
	tests := []struct {
		name string
		prop Property
		want string
	}{
		{"structure first", Property{StructureValue: "s", ResourceValue: "r"}, "s"},
		{"resource fallback", Property{ResourceValue: "r"}, "r"},
		{"empty", Property{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.prop.Value(); got != tt.want {
				t.Errorf("Value() = %q, want %q", got, tt.want)
			}
		})
	}

	if !(Property{Name: "x"}).IsNull() {
		t.Error("empty property is not null")
	}
	if DeleteProperty("x").IsNull() {
		t.Error("delete property is null")
	}
	p := NewProperty("Title", "a", "")
	if !p.AutoCreateDefinition {
		t.Error("NewProperty() does not auto create its definition")
	}
	if p.Mapped().AutoCreateDefinition {
		t.Error("Mapped() kept flags")
	}
	if !p.Identical(NewProperty("Title", "a", "")) || p.Identical(NewProperty("Title", "b", "")) {
		t.Error("Identical() mismatch")
	}
}
