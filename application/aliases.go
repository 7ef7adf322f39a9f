package application

// aliasRule coalesces alternative argument names into a canonical one.
// Aliases are listed in priority order.
type aliasRule struct {
	canonical string
	aliases   []string
}

var aliasRules = []aliasRule{
	{canonical: "directory", aliases: []string{"folder", "folder_path", "path"}},
	{canonical: "file_type", aliases: []string{"fileType"}},
}

// NormalizeArguments rewrites argument aliases to canonical names. When the
// canonical name is absent the first alias present wins; the remaining
// aliases are dropped. An alias the operation itself declares is left alone,
// and a rule is skipped entirely for operations that declare one of its
// aliases but not its canonical name. declares may be nil. The input map is
// not modified.
func NormalizeArguments(args map[string]any, declares func(string) bool) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}

	for _, rule := range aliasRules {
		if declares != nil && !declares(rule.canonical) && declaresAny(declares, rule.aliases) {
			// The operation speaks the alias vocabulary natively.
			continue
		}
		for _, alias := range rule.aliases {
			if declares != nil && declares(alias) {
				continue
			}
			v, ok := out[alias]
			if !ok {
				continue
			}
			if _, exists := out[rule.canonical]; !exists {
				out[rule.canonical] = v
			}
			delete(out, alias)
		}
	}
	return out
}

func declaresAny(declares func(string) bool, names []string) bool {
	for _, n := range names {
		if declares(n) {
			return true
		}
	}
	return false
}
