package profile

// ResourceKind distinguishes the origin of a function's enclosing
// resource: a native library, or a URL/script for interpreted code.
type ResourceKind uint8

const (
	ResourceLibrary ResourceKind = iota
	ResourceURL
)

type resourceKey struct {
	kind ResourceKind
	lib  LibraryHandle
	name StringHandle
}

// resourceTable interns (kind, library-or-name) tuples: the funcTable's
// "resource" column indexes into this table, with NoResource meaning
// "no resource" (e.g. a pure label frame).
type resourceTable struct {
	kinds []ResourceKind
	libs  []LibraryHandle
	names []StringHandle
	byKey map[resourceKey]ResourceHandle
}

func newResourceTable() *resourceTable {
	return &resourceTable{byKey: make(map[resourceKey]ResourceHandle)}
}

func (t *resourceTable) ForLibrary(lib LibraryHandle) ResourceHandle {
	key := resourceKey{kind: ResourceLibrary, lib: lib}
	if h, ok := t.byKey[key]; ok {
		return h
	}
	h := ResourceHandle(len(t.kinds))
	t.kinds = append(t.kinds, ResourceLibrary)
	t.libs = append(t.libs, lib)
	t.names = append(t.names, -1)
	t.byKey[key] = h
	return h
}

func (t *resourceTable) ForURL(name StringHandle) ResourceHandle {
	key := resourceKey{kind: ResourceURL, name: name}
	if h, ok := t.byKey[key]; ok {
		return h
	}
	h := ResourceHandle(len(t.kinds))
	t.kinds = append(t.kinds, ResourceURL)
	t.libs = append(t.libs, NoLibrary)
	t.names = append(t.names, name)
	t.byKey[key] = h
	return h
}

func (t *resourceTable) Len() int { return len(t.kinds) }

// Resource is the resolved form of a ResourceHandle.
type Resource struct {
	Kind ResourceKind
	Lib  LibraryHandle
	Name StringHandle
}

func (t *resourceTable) Get(h ResourceHandle) Resource {
	if h == NoResource {
		return Resource{Lib: NoLibrary, Name: -1}
	}
	return Resource{Kind: t.kinds[h], Lib: t.libs[h], Name: t.names[h]}
}
