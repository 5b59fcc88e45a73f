package classifier

// Default marker tables. The lists are deliberately conservative and match
// the documented governance contract; do not add or remove entries without
// updating the contract tests. Known gap, kept intentionally: "deploy"
// without the word "production" (e.g. "deploy this to prod") does not
// reach HIGH.

// defaultHighMarkers are secret-shaped and IP/license terms that classify
// HIGH on their own, regardless of surrounding text.
var defaultHighMarkers = []string{
	"api key",
	"password",
	"credential",
	"token",
	"private key",
	"production database",
	"license violation",
	"copyright",
	"proprietary",
}

// defaultProductionVerbs classify HIGH only when the prompt also contains
// "production" (destructive-verb + production co-occurrence).
var defaultProductionVerbs = []string{
	"deploy",
	"delete",
	"drop",
	"remove",
}

// defaultMediumMarkers are change-scope terms: the prompt asks to alter
// existing code, configuration, or security surface.
var defaultMediumMarkers = []string{
	"modify",
	"update",
	"change",
	"refactor",
	"config",
	"dependency",
	"multi-file",
	"security",
	"auth",
}

// defaultScopeCreepMarkers flag broad-rewrite prompts for the strategic
// evaluator's scope assessment. Advisory only; never drives control flow.
var defaultScopeCreepMarkers = []string{
	"redesign",
	"rewrite",
	"overhaul",
	"complete",
}
