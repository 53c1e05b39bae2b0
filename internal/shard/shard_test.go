package shard

import (
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const functionsShard = `var searchData=
[
  ['filestream_0',['FileStream',['../classtrio_1_1FileStream.html#a75e6',1,'trio::FileStream::FileStream()=default'],['../classtrio_1_1FileStream.html#a1d1c',1,'trio::FileStream::FileStream(const FileStream &amp;)=delete']]],
  ['filter_2',['filter',['../namespaceextd.html#af79b',1,'extd::filter(std::vector&lt; T, Args... &gt; &amp;source, Predicate pred)']]],
  ['filteredinputarchive_3',['FilteredInputArchive',['../classdna_1_1FilteredInputArchive.html#ac1a2',1,'dna::FilteredInputArchive::FilteredInputArchive()']]]
];
`

func TestParse_Doxygen(t *testing.T) {
	sh, err := Parse(Payload{Key: "search/functions_5", Data: []byte(functionsShard)})
	require.NoError(t, err)
	assert.Equal(t, CategoryFunction, sh.Category)
	require.Len(t, sh.Entries, 3)

	fs := sh.Entries[0]
	assert.Equal(t, "filestream_0", fs.ID)
	assert.Equal(t, "FileStream", fs.Label)
	assert.Equal(t, "search/functions_5/filestream_0", fs.QualifiedID())
	require.Len(t, fs.Anchors, 2)
	assert.Equal(t, "trio::FileStream::FileStream(const FileStream &)=delete", fs.Anchors[1].Scope)
	assert.Equal(t, "../classtrio_1_1FileStream.html#a75e6", fs.URL())

	assert.Equal(t, "extd::filter(std::vector< T, Args... > &source, Predicate pred)", sh.Entries[1].Anchors[0].Scope)
}

func TestParse_DoxygenEscapes(t *testing.T) {
	src := `var searchData=[['it_0',['it\'s',['a.html',1,'ns::it\'s \\ \x41\u0042']]]];`
	sh, err := Parse(Payload{Key: "all_0", Format: FormatDoxygen, Data: []byte(src)})
	require.NoError(t, err)
	assert.Equal(t, "it's", sh.Entries[0].Label)
	assert.Equal(t, `ns::it's \ AB`, sh.Entries[0].Anchors[0].Scope)
	assert.Equal(t, CategorySymbol, sh.Category)
}

func TestParse_JSON(t *testing.T) {
	src := `[
		["FileStream", [["trio", "a.html#1"], ["trio", "a.html#2"]]],
		{"id": "fia", "label": "FilteredInputArchive", "category": "type", "anchors": [{"scope": "dna", "url": "b.html"}]}
	]`
	sh, err := Parse(Payload{Key: "extra", Category: CategoryFunction, Format: FormatJSON, Data: []byte(src)})
	require.NoError(t, err)
	require.Len(t, sh.Entries, 2)
	assert.Equal(t, "0", sh.Entries[0].ID)
	assert.Equal(t, CategoryFunction, sh.Entries[0].Category)
	assert.Len(t, sh.Entries[0].Anchors, 2)
	assert.Equal(t, "fia", sh.Entries[1].ID)
	assert.Equal(t, CategoryType, sh.Entries[1].Category)
	assert.Equal(t, "b.html", sh.Entries[1].URL())
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]Payload{
		"truncated":     {Key: "a", Data: []byte(`var searchData=[['x_0',['X',['x.html',1,'']]`)},
		"no anchors":    {Key: "b", Data: []byte(`var searchData=[['x_0',['X']]];`)},
		"empty url":     {Key: "c", Data: []byte(`var searchData=[['x_0',['X',['',1,'']]]];`)},
		"empty label":   {Key: "d", Data: []byte(`var searchData=[['x_0',['',['x.html',1,'']]]];`)},
		"duplicate id":  {Key: "e", Data: []byte(`var searchData=[['x_0',['X',['x.html',1,'']]],['x_0',['Y',['y.html',1,'']]]];`)},
		"wrong shape":   {Key: "f", Data: []byte(`var searchData=[['x_0']];`)},
		"bad json":      {Key: "g", Format: FormatJSON, Data: []byte(`[{"label":`)},
		"json scalar":   {Key: "h", Format: FormatJSON, Data: []byte(`[42]`)},
		"punctuation":   {Key: "i", Data: []byte(`var searchData=[['x_0',['==',['x.html',1,'']]]];`)},
		"unknown":       {Key: "j", Format: "yaml", Data: []byte(`[]`)},
		"read error":    {Key: "k", ReadErr: errors.New("permission denied")},
		"trailing junk": {Key: "l", Data: []byte(`var searchData=[]; alert(1)`)},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(p)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMalformedShard)
			var me *MalformedShardError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, p.Key, me.Shard)
		})
	}
}

func TestCategoryFromName(t *testing.T) {
	cases := map[string]Category{
		"functions_5.js":          CategoryFunction,
		"html/search/classes_a":   CategoryType,
		"namespaces_0.js.gz":      CategoryNamespace,
		"enumvalues_1.json":       CategoryEnumValue,
		"defines_3.js":            CategoryMacro,
		"all_12.js":               CategorySymbol,
		"custom.json":             CategorySymbol,
		`C:\docs\variables_2.js`:  CategoryVariable,
	}
	for name, want := range cases {
		assert.Equal(t, want, CategoryFromName(name), name)
	}
}

func TestStore_LoadSkipsMalformedShard(t *testing.T) {
	store := NewStore()
	assert.Nil(t, store.Current())

	set, err := store.Load([]Payload{
		{Key: "functions_5", Data: []byte(functionsShard)},
		{Key: "classes_0", Data: []byte(`var searchData=[['x_0',['X']]];`)},
		{Key: "extra", Format: FormatJSON, Data: []byte(`[["Vec3", [["math", "v.html"]]]]`)},
	})
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	require.Len(t, le.Failures, 1)
	assert.Equal(t, "classes_0", le.Failures[0].Shard)
	assert.ErrorIs(t, err, apperrors.ErrMalformedShard)

	require.NotNil(t, set)
	assert.Same(t, set, store.Current())
	assert.Equal(t, uint64(1), set.Version())
	assert.Equal(t, 4, set.Len())
	assert.Equal(t, []string{"classes_0"}, set.Failed())
	assert.Len(t, set.Shards(), 2)

	var labels []string
	for i, e := range set.AllEntries() {
		assert.Same(t, set.Entry(i), e)
		labels = append(labels, e.Label)
	}
	assert.Equal(t, []string{"FileStream", "filter", "FilteredInputArchive", "Vec3"}, labels)
}

func TestStore_ReloadKeepsOldSnapshot(t *testing.T) {
	store := NewStore()
	old, err := store.Load([]Payload{{Key: "functions_5", Data: []byte(functionsShard)}})
	require.NoError(t, err)

	next, err := store.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next.Version())
	assert.Equal(t, 0, next.Len())
	assert.Equal(t, 3, old.Len())
	assert.Equal(t, "FileStream", old.Entry(0).Label)
}

func TestStore_DuplicateKeyRejected(t *testing.T) {
	store := NewStore()
	set, err := store.Load([]Payload{
		{Key: "functions_5", Data: []byte(functionsShard)},
		{Key: "functions_5", Format: FormatJSON, Data: []byte(`[["Vec3", [["math", "v.html"]]]]`)},
	})
	var le *LoadError
	require.ErrorAs(t, err, &le)
	require.Len(t, le.Failures, 1)
	assert.Equal(t, "duplicate shard key", le.Failures[0].Reason)
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []string{"functions_5"}, set.Failed())
}

func TestSet_DigestTracksContent(t *testing.T) {
	parse := func(data string) *Shard {
		sh, err := Parse(Payload{Key: "extra", Format: FormatJSON, Data: []byte(data)})
		require.NoError(t, err)
		return sh
	}
	a := NewSet(1, parse(`[["Vec3", [["math", "v.html"]]]]`))
	b := NewSet(7, parse(`[["Vec3", [["math", "v.html"]]]]`))
	moved := NewSet(1, parse(`[["Vec3", [["math", "w.html"]]]]`))

	assert.Equal(t, a.Digest(), b.Digest())
	assert.NotEqual(t, a.Digest(), moved.Digest())
}

func TestAllEntries_StopsEarly(t *testing.T) {
	sh, err := Parse(Payload{Key: "functions_5", Data: []byte(functionsShard)})
	require.NoError(t, err)
	set := NewSet(1, sh)
	n := 0
	for range set.AllEntries() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func BenchmarkParseDoxygen(b *testing.B) {
	data := []byte(functionsShard)
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		if _, err := Parse(Payload{Key: "functions_5", Data: data}); err != nil {
			b.Fatal(err)
		}
	}
}
