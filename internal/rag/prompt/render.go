package prompt

import "strings"

// Render fills both placeholder styles, {{name}} and {name}, and appends the
// output-format block. Unknown placeholders are left as written.
func Render(t Template, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*4)
	for name, value := range vars {
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	user := strings.NewReplacer(pairs...).Replace(t.UserPromptTemplate)

	if format := strings.TrimSpace(t.OutputFormat); format != "" {
		user = strings.TrimRight(user, "\n") + "\n\n" + format
	}
	return user
}
