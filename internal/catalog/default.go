package catalog

func documents(mountains ...string) []Reference {
	return []Reference{
		{Filename: "Photo_1.png", Phrases: []string{"photo one", "photo 1", "photo one picture", "first image", "initial picture"}},
		{Filename: "Contract.pdf", Phrases: []string{"contract", "contract pdf", "agreement document", "legal paper"}},
		{Filename: "ID.pdf", Phrases: []string{"id", "id pdf", "id document", "identification document", "identity card"}},
		{Filename: "Demo.jpg", Phrases: []string{"demo", "demo picture", "demo photo", "demonstration photo", "demonstration picture", "example image"}},
		{Filename: "1234.pdf", Phrases: []string{"one two three four", "1234", "1234 pdf", "1234 document", "document 1234", "four numbers"}},
		{Filename: "Mountains.jpg", Phrases: mountains},
	}
}

// Default returns the built-in catalog used when no catalog file is
// configured.
func Default() *Catalog {
	return &Catalog{Actions: []Action{
		{
			Name:     "print",
			Patterns: []string{"print", "generate hard copy"},
			Files:    documents("mountains", "mountain", "mountains picture", "mountains photo", "mountain view", "landscape photo"),
			Template: "Print {file_name}",
		},
		{
			Name:     "publish",
			Patterns: []string{"publish to cloud", "upload"},
			Files:    documents("mountains", "mountains picture", "mountains photo", "mountain view", "landscape photo"),
			Template: "Publish {file_name} to cloud",
		},
		{
			Name:     "copy",
			Patterns: []string{"copy", "copy document", "copy paper"},
			Template: "Copy",
		},
		{
			Name:     "scan",
			Patterns: []string{"scan", "scan document", "scan paper"},
			Template: "Scan",
		},
	}}
}
