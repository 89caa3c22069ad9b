package roster

// DefaultKeywords maps each role to transcript tokens characteristic of
// that role's in-game call-outs (Korean team-voice vocabulary). Used by
// the identifier's near-tie disambiguation when the registry file does not
// carry its own keyword block.
//
// These are advisory hints only: a keyword match nudges ranking between
// two near-tied candidates, it never overrides the similarity score.
var DefaultKeywords = map[string][]string{
	"jungle":  {"갱", "정글", "카운터", "오브젝트", "드래곤", "바론", "헤럴드", "크랩"},
	"support": {"와드", "핑크", "시야", "로밍", "힐", "실드"},
	"mid":     {"미드", "로밍", "솔킬"},
	"top":     {"탑", "텔", "tp", "스플릿"},
	"adc":     {"딜", "포지션", "cs"},
}
