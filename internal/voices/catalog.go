// Package voices holds the static voice catalog and the per-job
// (speaker_id, language) -> voice_id assignment algorithm.
package voices

// Style is the declared delivery style of a catalog voice, used by Assign
// only once every voice of the wanted gender is already claimed.
type Style string

const (
	StyleMovieDialogue Style = "movie dialogue"
	StyleDocumentary   Style = "documentary"
	StyleNeutral       Style = "neutral"
)

// Voice is one catalog entry for a given language and gender.
type Voice struct {
	ID    string
	Style Style
	Age   string // "young", "middle", "senior"
}

// catalog is the bundled language -> gender -> voices table. The data is
// static and carried verbatim, not derived or computed; Assign only ever
// reads it.
var catalog = map[string]map[string][]Voice{
	"es": {
		"male": {
			{ID: "es-male-diego", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "es-male-rodrigo", Style: StyleDocumentary, Age: "senior"},
			{ID: "es-male-mateo", Style: StyleNeutral, Age: "young"},
		},
		"female": {
			{ID: "es-female-lucia", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "es-female-carmen", Style: StyleDocumentary, Age: "senior"},
			{ID: "es-female-valentina", Style: StyleNeutral, Age: "young"},
		},
	},
	"es-MX": {
		"male": {
			{ID: "es-mx-male-alejandro", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "es-mx-male-santiago", Style: StyleDocumentary, Age: "senior"},
		},
		"female": {
			{ID: "es-mx-female-camila", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "es-mx-female-ximena", Style: StyleDocumentary, Age: "senior"},
		},
	},
	"fr": {
		"male": {
			{ID: "fr-male-antoine", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "fr-male-julien", Style: StyleDocumentary, Age: "senior"},
			{ID: "fr-male-hugo", Style: StyleNeutral, Age: "young"},
		},
		"female": {
			{ID: "fr-female-camille", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "fr-female-sophie", Style: StyleDocumentary, Age: "senior"},
			{ID: "fr-female-manon", Style: StyleNeutral, Age: "young"},
		},
	},
	"de": {
		"male": {
			{ID: "de-male-felix", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "de-male-klaus", Style: StyleDocumentary, Age: "senior"},
		},
		"female": {
			{ID: "de-female-greta", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "de-female-hannah", Style: StyleDocumentary, Age: "senior"},
		},
	},
	"pt-BR": {
		"male": {
			{ID: "pt-br-male-joao", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "pt-br-male-gustavo", Style: StyleDocumentary, Age: "senior"},
		},
		"female": {
			{ID: "pt-br-female-ana", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "pt-br-female-beatriz", Style: StyleDocumentary, Age: "senior"},
		},
	},
	"ja": {
		"male": {
			{ID: "ja-male-hiroshi", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "ja-male-kenji", Style: StyleDocumentary, Age: "senior"},
		},
		"female": {
			{ID: "ja-female-yuki", Style: StyleMovieDialogue, Age: "middle"},
			{ID: "ja-female-sakura", Style: StyleDocumentary, Age: "senior"},
		},
	},
}

// VoicesFor returns the catalog voices for a language and gender. Falls
// back to the base language (stripping a regional suffix like "-MX") when
// the regional variant has no dedicated entries.
func VoicesFor(language, gender string) []Voice {
	if byGender, ok := catalog[language]; ok {
		if v, ok := byGender[gender]; ok && len(v) > 0 {
			return v
		}
	}
	if base := baseLanguage(language); base != language {
		return VoicesFor(base, gender)
	}
	return nil
}

// HasLanguage reports whether the catalog carries any voices for the
// language, directly or via its base code.
func HasLanguage(language string) bool {
	return len(VoicesFor(language, "male")) > 0 || len(VoicesFor(language, "female")) > 0
}

func baseLanguage(language string) string {
	for i, r := range language {
		if r == '-' {
			return language[:i]
		}
	}
	return language
}
