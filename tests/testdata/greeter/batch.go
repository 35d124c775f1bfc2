package greeter

// GreetAll greets every name and stops at the first one that is too long.
func GreetAll(g Greeter, names []string) []string {
	out := make([]string, 0, len(names))
	limit := MaxLength
	for _, name := range names {
		if len(name) > limit {
			goto Done
		}
		limit := limit - len(name)
		out = append(out, shout(g.Greet(name))[:min(limit, len(name))])
	}
Done:
	return out
}
