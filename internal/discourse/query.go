package discourse

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Arabic stop words filtered out of keyword queries.
var stopWords = map[string]struct{}{
	"في": {}, "من": {}, "إلى": {}, "على": {}, "مع": {}, "عن": {},
	"كيف": {}, "ماذا": {}, "متى": {}, "أين": {}, "لماذا": {},
	"هل": {}, "ما": {}, "هو": {}, "هي": {}, "هذا": {}, "هذه": {},
	"التي": {}, "الذي": {}, "والتي": {},
	"أن": {}, "إن": {}, "كان": {}, "كانت": {}, "يكون": {}, "تكون": {},
	"لكي": {}, "حتى": {}, "لا": {}, "لم": {}, "لن": {},
}

// Arabic software and tech names mapped to the English terms the forum
// actually indexes.
var nameMappings = map[string][]string{
	"أوبونتو":   {"ubuntu", "أوبونتو"},
	"لينكس":     {"linux", "لينكس"},
	"وندوز":     {"windows", "وندوز"},
	"فيدورا":    {"fedora", "فيدورا"},
	"دبيان":     {"debian", "دبيان"},
	"أرش":       {"arch", "أرش"},
	"منت":       {"mint", "منت"},
	"سنتوس":     {"centos", "سنتوس"},
	"ريد هات":   {"redhat", "rhel", "ريد هات"},
	"أوبن سوزي": {"opensuse", "suse", "أوبن سوزي"},

	"جنوم":         {"gnome", "جنوم"},
	"كي دي إي":     {"kde", "plasma", "كي دي إي"},
	"إكس إف سي إي": {"xfce", "إكس إف سي إي"},
	"سينامون":      {"cinnamon", "سينامون"},
	"ميت":          {"mate", "ميت"},

	"فايرفوكس":   {"firefox", "فايرفوكس"},
	"كروم":       {"chrome", "chromium", "كروم"},
	"ليبر أوفيس": {"libreoffice", "ليبر أوفيس"},
	"جيمب":       {"gimp", "جيمب"},
	"في إل سي":   {"vlc", "في إل سي"},
	"بلندر":      {"blender", "بلندر"},
	"إنكسكيب":    {"inkscape", "إنكسكيب"},
	"أوداسيتي":   {"audacity", "أوداسيتي"},
	"كودي":       {"kodi", "كودي"},
	"سبوتيفاي":   {"spotify", "سبوتيفاي"},
	"ديسكورد":    {"discord", "ديسكورد"},
	"تيليجرام":   {"telegram", "تيليجرام"},
	"سكايب":      {"skype", "سكايب"},
	"زووم":       {"zoom", "زووم"},

	"فيسوال ستوديو كود": {"vscode", "visual studio code", "code", "فيسوال ستوديو كود"},
	"سابليم تكست":       {"sublime", "sublime text", "سابليم تكست"},
	"أتوم":              {"atom", "أتوم"},
	"إيماكس":            {"emacs", "إيماكس"},
	"فيم":               {"vim", "neovim", "فيم"},
	"جيت":               {"git", "github", "gitlab", "جيت"},
	"دوكر":              {"docker", "دوكر"},
	"كوبرنتيس":          {"kubernetes", "k8s", "كوبرنتيس"},
	"أباتشي":            {"apache", "httpd", "أباتشي"},
	"إنجين إكس":         {"nginx", "إنجين إكس"},

	"بايثون":      {"python", "بايثون"},
	"جافا":        {"java", "جافا"},
	"جافا سكريبت": {"javascript", "js", "nodejs", "node", "جافا سكريبت"},
	"سي":          {"c", "سي"},
	"سي بلس بلس":  {"c++", "cpp", "سي بلس بلس"},
	"سي شارب":     {"c#", "csharp", "dotnet", "سي شارب"},
	"بي إتش بي":   {"php", "بي إتش بي"},
	"روبي":        {"ruby", "روبي"},
	"جو":          {"go", "golang", "جو"},
	"رست":         {"rust", "رست"},
	"سويفت":       {"swift", "سويفت"},
	"كوتلن":       {"kotlin", "كوتلن"},

	"تثبيت":        {"install", "installation", "setup", "تثبيت"},
	"إزالة":        {"remove", "uninstall", "delete", "إزالة"},
	"تحديث":        {"update", "upgrade", "patch", "تحديث"},
	"مشكلة":        {"problem", "issue", "error", "bug", "مشكلة"},
	"خطأ":          {"error", "exception", "crash", "خطأ"},
	"حل":           {"solution", "fix", "solve", "resolve", "حل"},
	"إعداد":        {"setup", "configuration", "config", "settings", "إعداد"},
	"شرح":          {"tutorial", "guide", "explanation", "how-to", "شرح"},
	"مساعدة":       {"help", "support", "assistance", "مساعدة"},
	"أداء":         {"performance", "speed", "optimization", "أداء"},
	"حماية":        {"security", "protection", "firewall", "حماية"},
	"شبكة":         {"network", "internet", "wifi", "ethernet", "شبكة"},
	"قاعدة بيانات": {"database", "mysql", "postgresql", "sqlite", "قاعدة بيانات"},
	"خادم":         {"server", "hosting", "cloud", "خادم"},
	"نسخ احتياطي":  {"backup", "restore", "نسخ احتياطي"},
}

var (
	wordRe  = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	latinRe = regexp.MustCompile(`[A-Za-z]+`)
)

// extractKeywords drops stop words and very short tokens, keeping at most
// five keywords in question order.
func extractKeywords(query string) []string {
	var keywords []string
	for _, word := range wordRe.FindAllString(query, -1) {
		if utf8.RuneCountInString(word) <= 2 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == 5 {
			break
		}
	}
	return keywords
}

// englishEquivalents collects the mapped terms for every known Arabic name
// found in the question.
func englishEquivalents(query string) []string {
	queryLower := strings.ToLower(query)
	seen := make(map[string]struct{})
	var terms []string
	for arabic, equivalents := range nameMappings {
		if !strings.Contains(queryLower, arabic) {
			continue
		}
		for _, term := range equivalents {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)
	return terms
}

// importantTerms picks up to three standalone search terms: Latin words,
// longer tokens, and any mapped Arabic names, longest first.
func importantTerms(query string) []string {
	seen := make(map[string]struct{})
	add := func(term string) {
		if _, ok := seen[term]; !ok {
			seen[term] = struct{}{}
		}
	}
	for _, term := range latinRe.FindAllString(query, -1) {
		add(term)
	}
	for _, term := range wordRe.FindAllString(query, -1) {
		if utf8.RuneCountInString(term) >= 4 {
			add(term)
		}
	}
	queryLower := strings.ToLower(query)
	for arabic := range nameMappings {
		if strings.Contains(queryLower, arabic) {
			add(arabic)
		}
	}

	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(terms[i]), utf8.RuneCountInString(terms[j])
		if li != lj {
			return li > lj
		}
		return terms[i] < terms[j]
	})
	if len(terms) > 3 {
		terms = terms[:3]
	}
	return terms
}
