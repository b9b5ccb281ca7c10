package document

// pronounSet holds the forms used in agreement prose for one canonical
// pronoun choice.
type pronounSet struct {
	key        string // he, she or they
	subject    string
	object     string
	determiner string
	possessive string
}

var pronounSets = map[string]pronounSet{
	"he/him/his":       {key: "he", subject: "he", object: "him", determiner: "his", possessive: "his"},
	"she/her/hers":     {key: "she", subject: "she", object: "her", determiner: "her", possessive: "hers"},
	"they/them/theirs": {key: "they", subject: "they", object: "them", determiner: "their", possessive: "theirs"},
}

// pronounKeys lists the seven derived fields for a party prefix.
func pronounKeys(prefix string) []string {
	return []string{
		prefix + "_is_he",
		prefix + "_is_she",
		prefix + "_is_they",
		prefix + "_he",
		prefix + "_her",
		prefix + "_his",
		prefix + "_hers",
	}
}

// addPronouns sets the derived pronoun fields for prefix. The value must
// match a canonical set exactly; anything else leaves all seven fields nil.
func addPronouns(f Fields, prefix, value string) {
	keys := pronounKeys(prefix)
	set, ok := pronounSets[value]
	if !ok {
		for _, k := range keys {
			f[k] = nil
		}
		return
	}
	f[keys[0]] = set.key == "he"
	f[keys[1]] = set.key == "she"
	f[keys[2]] = set.key == "they"
	f[keys[3]] = set.subject
	f[keys[4]] = set.object
	f[keys[5]] = set.determiner
	f[keys[6]] = set.possessive
}
