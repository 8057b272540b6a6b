package tree_test

import (
	"errors"
	"testing"

	"github.com/calvinalkan/docsync/internal/tree"
)

func Test_ContentLayout_Maps_Slug_To_Path_And_Back(t *testing.T) {
	t.Parallel()

	layout := tree.ContentLayout{Ext: ".mdx"}

	for _, slug := range []string{"index", "guides/install", "a/b/c/d"} {
		rel, err := layout.RelPath(slug)
		if err != nil {
			t.Fatalf("RelPath(%q): %v", slug, err)
		}

		if rel != slug+".mdx" {
			t.Fatalf("RelPath(%q) = %q", slug, rel)
		}

		back, ok := layout.Key(rel)
		if !ok || back != slug {
			t.Fatalf("Key(%q) = %q/%v, want %q/true", rel, back, ok, slug)
		}
	}
}

func Test_ContentLayout_Ignores_Files_When_Extension_Differs(t *testing.T) {
	t.Parallel()

	layout := tree.ContentLayout{Ext: ".mdx"}

	for _, rel := range []string{"a.md", "meta.json", "a.mdx.bak", "dir/.mdx", "x.MDX"} {
		if key, ok := layout.Key(rel); ok {
			t.Errorf("Key(%q) = %q/true, want not owned", rel, key)
		}
	}
}

func Test_ContentLayout_Rejects_Slugs_When_Invalid(t *testing.T) {
	t.Parallel()

	layout := tree.ContentLayout{Ext: ".mdx"}

	for _, slug := range []string{"", "/abs", "trailing/", "a//b", "../up", "a/./b", ".hidden", "a\\b"} {
		if _, err := layout.RelPath(slug); !errors.Is(err, tree.ErrInvalidPath) {
			t.Errorf("RelPath(%q) err = %v, want ErrInvalidPath", slug, err)
		}
	}
}

func Test_MetaLayout_Maps_Directory_To_Sidecar_And_Back(t *testing.T) {
	t.Parallel()

	layout := tree.MetaLayout{}

	cases := map[string]string{
		tree.MetaRootKey:  "meta.json",
		"guides":          "guides/meta.json",
		"guides/advanced": "guides/advanced/meta.json",
	}

	for key, wantRel := range cases {
		rel, err := layout.RelPath(key)
		if err != nil {
			t.Fatalf("RelPath(%q): %v", key, err)
		}

		if rel != wantRel {
			t.Fatalf("RelPath(%q) = %q, want %q", key, rel, wantRel)
		}

		back, ok := layout.Key(rel)
		if !ok || back != key {
			t.Fatalf("Key(%q) = %q/%v, want %q/true", rel, back, ok, key)
		}
	}

	if _, ok := layout.Key("guides/intro.mdx"); ok {
		t.Fatal("Key(guides/intro.mdx) owned, want not owned")
	}
}
