package generation

import (
	"strconv"
	"strings"

	"github.com/octobees/supplier-outreach/internal/compose"
	"github.com/octobees/supplier-outreach/internal/entity"
)

const (
	candidateMaxTokens = 2000
	emailMaxTokens     = 800
	replyMaxTokens     = 700
)

// PromptSet holds the editable prompt templates.
type PromptSet struct {
	SupplierSearchSystem string `yaml:"supplier_search_system"`
	SupplierSearchUser   string `yaml:"supplier_search_user"`
	EmailWriterSystem    string `yaml:"email_writer_system"`
	EmailWriterUser      string `yaml:"email_writer_user"`
	ResponseSystem       string `yaml:"response_system"`
	ResponseUser         string `yaml:"response_user"`
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() PromptSet {
	return PromptSet{
		SupplierSearchSystem: "You are an expert B2B procurement specialist with 15+ years of experience in international sourcing. " +
			"Find verified, professional suppliers with direct manufacturing capabilities. " +
			"Only include suppliers with strong business credentials, a real company website and a professional contact email. " +
			"Never invent contact details.",
		SupplierSearchUser: `Find {{minSuppliers}}-{{maxSuppliers}} professional suppliers for:

**Product:** {{product_description}}
**Target Quantity:** {{quantity}}
**Target Price:** {{target_price}}
**Additional Requirements:** {{additional_requirements}}

{{region_instructions}}

**Supplier Criteria:**
- Manufacturing companies, not trading companies
- Professional business email addresses on the company domain
- Documented certifications (ISO, CE, RoHS) and production capacity
- Experience exporting internationally

Return ONLY a JSON object of the form {"suppliers": [...]}. Each supplier object must include: company_name, email, phone, country, city, website, manufacturing_capabilities, production_capacity, certifications, years_in_business, estimated_price_range, minimum_order_quantity.`,
		EmailWriterSystem: "You are a senior procurement manager with 15+ years of experience in international sourcing. " +
			"Write professional B2B inquiry emails that establish credibility, build relationships, and generate high-quality responses.",
		EmailWriterUser: `Write a professional B2B supplier inquiry email with the following details:

{{supplier_block}}

{{product_block}}

{{language_instruction}}

Return ONLY a JSON object with fields: subject, body. Do not include a greeting line or a signature in the body.`,
		ResponseSystem: "You are a senior procurement agent continuing an email negotiation with a supplier. " +
			"Keep the tone professional and collaborative, and focus on moving the deal forward.",
		ResponseUser: "Compose a reply to the supplier using the conversation history and company context. " +
			"Provide clear next steps and request any missing information. " +
			"Return ONLY a JSON object with fields: subject, body. Do not include a greeting line or a signature in the body.",
	}
}

// WithDefaults fills empty templates from DefaultPrompts.
func (ps PromptSet) WithDefaults() PromptSet {
	def := DefaultPrompts()
	if strings.TrimSpace(ps.SupplierSearchSystem) == "" {
		ps.SupplierSearchSystem = def.SupplierSearchSystem
	}
	if strings.TrimSpace(ps.SupplierSearchUser) == "" {
		ps.SupplierSearchUser = def.SupplierSearchUser
	}
	if strings.TrimSpace(ps.EmailWriterSystem) == "" {
		ps.EmailWriterSystem = def.EmailWriterSystem
	}
	if strings.TrimSpace(ps.EmailWriterUser) == "" {
		ps.EmailWriterUser = def.EmailWriterUser
	}
	if strings.TrimSpace(ps.ResponseSystem) == "" {
		ps.ResponseSystem = def.ResponseSystem
	}
	if strings.TrimSpace(ps.ResponseUser) == "" {
		ps.ResponseUser = def.ResponseUser
	}
	return ps
}

var regionInstructions = map[string]string{
	"china": `**Geographic Priority:**
1. PRIMARY: China (mainland) - Shenzhen, Guangzhou, Dongguan, Shanghai, Ningbo, Yiwu, Wenzhou
2. Secondary: Taiwan, Hong Kong
3. Avoid: Other regions unless absolutely necessary

**Email Policy:** Chinese business emails (QQ, 163, 126, yeah.net) are acceptable.`,
	"asia": `**Geographic Priority:**
1. PRIMARY: East Asia - China, Taiwan, South Korea, Japan
2. SECONDARY: Southeast Asia - Vietnam, Thailand, Malaysia, Indonesia
3. Alternative: India, Bangladesh

**Email Policy:** Asian business emails including Chinese providers (QQ, 163, 126) and local domains are acceptable.`,
	"europe": `**Geographic Priority:**
1. PRIMARY: Western Europe - Germany, Poland, Czech Republic, Italy, France
2. SECONDARY: Eastern Europe - Romania, Bulgaria, Hungary, Slovakia
3. Alternative: Turkey

**Email Policy:** Company domain emails only. Free email providers are not acceptable.`,
	"usa": `**Geographic Priority:**
1. PRIMARY: United States - California, Texas, Michigan, Ohio
2. SECONDARY: Canada, Mexico

**Email Policy:** Company domain emails only. Free email providers are not acceptable.`,
	"global": `**Geographic Priority:**
Worldwide. Rank suppliers by manufacturing capability match, competitive pricing, export experience and credentials.

**Email Policy:** Business emails from reputable regional providers are acceptable.`,
}

// Regions lists the accepted region codes.
func Regions() []string {
	return []string{"china", "asia", "europe", "usa", "global"}
}

// RegionInstructions returns the geographic guidance for region, falling
// back to china.
func RegionInstructions(region string) string {
	if text, ok := regionInstructions[strings.ToLower(strings.TrimSpace(region))]; ok {
		return text
	}
	return regionInstructions["china"]
}

// SearchPrompt renders the candidate generation prompt for q.
func (ps PromptSet) SearchPrompt(q entity.SearchQuery, temperature float64) Prompt {
	ps = ps.WithDefaults()
	vars := map[string]string{
		"minSuppliers":            strconv.Itoa(q.MinSuppliers),
		"maxSuppliers":            strconv.Itoa(q.MaxSuppliers),
		"product_description":     q.ProductDescription,
		"quantity":                orDefault(q.Quantity, "Not specified"),
		"target_price":            orDefault(q.TargetPrice, "Not specified"),
		"additional_requirements": orDefault(q.Requirements, "None"),
		"region_instructions":     RegionInstructions(q.Region),
	}
	return Prompt{
		Kind:        KindCandidates,
		System:      ps.SupplierSearchSystem,
		User:        compose.Render(ps.SupplierSearchUser, vars),
		Temperature: temperature,
		MaxTokens:   candidateMaxTokens,
	}
}

// EmailPrompt renders the email writer prompt for one supplier.
func (ps PromptSet) EmailPrompt(s entity.Supplier, q entity.SearchQuery, language string, temperature float64) Prompt {
	ps = ps.WithDefaults()
	vars := map[string]string{
		"supplier_block":       SupplierBlock(s),
		"product_block":        ProductBlock(q),
		"language_instruction": LanguageInstruction(language),
	}
	return Prompt{
		Kind:        KindEmail,
		System:      ps.EmailWriterSystem,
		User:        compose.Render(ps.EmailWriterUser, vars),
		Temperature: temperature,
		MaxTokens:   emailMaxTokens,
	}
}

// ReplyPrompt renders the prompt for answering the latest supplier message.
// The transcript is the supplier's conversation history, oldest first.
func (ps PromptSet) ReplyPrompt(s entity.Supplier, q entity.SearchQuery, latestSubject string, temperature float64) Prompt {
	ps = ps.WithDefaults()
	conversation := strings.Join([]string{
		"Supplier company: " + orDefault(s.CompanyName, "Unknown"),
		"Product focus: " + orDefault(q.ProductDescription, "Not specified"),
		"Latest supplier message subject: " + orDefault(latestSubject, "No Subject"),
		"",
		"**Conversation History:**",
		Transcript(s),
	}, "\n")
	return Prompt{
		Kind:        KindEmail,
		System:      ps.ResponseSystem,
		User:        ps.ResponseUser + "\n\n" + conversation,
		Temperature: temperature,
		MaxTokens:   replyMaxTokens,
	}
}

// Transcript renders the exchanged messages of s, one block per message.
// System events are left out.
func Transcript(s entity.Supplier) string {
	var blocks []string
	for _, ev := range s.History {
		var author string
		switch ev.Direction {
		case entity.DirectionInbound:
			author = orDefault(s.CompanyName, "Supplier")
		case entity.DirectionOutbound:
			author = "Procurement Team"
		default:
			continue
		}
		body := strings.TrimSpace(ev.Body)
		if body == "" {
			body = ev.Subject
		}
		blocks = append(blocks, strings.ToUpper(author)+": "+body)
	}
	if len(blocks) == 0 {
		return "No previous messages yet."
	}
	return strings.Join(blocks, "\n\n")
}

// SupplierBlock describes s for the email writer.
func SupplierBlock(s entity.Supplier) string {
	return strings.Join([]string{
		"**SUPPLIER INFORMATION:**",
		"- Company: " + orDefault(s.CompanyName, "Unknown"),
		"- Email: " + orDefault(s.Email, "unknown"),
		"- Country: " + orDefault(s.Country, "unknown"),
		"- City: " + orDefault(s.City, "unknown"),
		"- Website: " + orDefault(s.Website, "n/a"),
		"- Capabilities: " + sanitize(s.Capabilities),
		"- Capacity: " + sanitize(s.ProductionCapacity),
		"- Certifications: " + sanitize(s.Certifications),
		"- Years in Business: " + sanitize(s.YearsInBusiness),
		"- Price Range: " + sanitize(s.PriceRange),
		"- MOQ: " + sanitize(s.MinimumOrderQuantity),
	}, "\n")
}

// ProductBlock describes the requested product for the email writer.
func ProductBlock(q entity.SearchQuery) string {
	return strings.Join([]string{
		"**PRODUCT REQUIREMENTS:**",
		"- Product: " + q.ProductDescription,
		"- Quantity: " + orDefault(q.Quantity, "To discuss"),
		"- Target Price: " + orDefault(q.TargetPrice, "To discuss"),
		"- Additional Requirements: " + orDefault(q.Requirements, "None provided"),
	}, "\n")
}

var languageNames = map[string]string{
	"zh":    "Simplified Chinese (简体中文)",
	"zh-TW": "Traditional Chinese (繁體中文)",
	"ja":    "Japanese (日本語), using keigo",
	"ko":    "Korean (한국어), using the polite form",
	"de":    `German, using the formal "Sie"`,
	"fr":    `French, using the formal "vous"`,
	"es":    `Spanish, using the formal "usted"`,
	"it":    `Italian, using the formal "Lei"`,
	"pt":    "Portuguese",
	"nl":    `Dutch, using the polite "u"`,
	"pl":    "Polish, using Pan/Pani",
	"cs":    "Czech",
	"tr":    `Turkish, using the formal "Siz"`,
	"vi":    "Vietnamese",
	"th":    "Thai",
	"id":    "Indonesian (Bahasa Indonesia)",
	"ms":    "Malay (Bahasa Melayu)",
}

var countryLanguages = map[string]string{
	"china": "zh", "taiwan": "zh-TW", "hong kong": "zh-TW", "japan": "ja",
	"south korea": "ko", "korea": "ko", "vietnam": "vi", "thailand": "th",
	"indonesia": "id", "malaysia": "ms", "germany": "de", "austria": "de",
	"switzerland": "de", "france": "fr", "belgium": "fr", "spain": "es",
	"italy": "it", "portugal": "pt", "netherlands": "nl", "poland": "pl",
	"czech republic": "cs", "turkey": "tr", "mexico": "es", "brazil": "pt",
	"argentina": "es", "chile": "es", "colombia": "es",
}

// LanguageForCountry returns the business language code used for country,
// or "en".
func LanguageForCountry(country string) string {
	if code, ok := countryLanguages[strings.ToLower(strings.TrimSpace(country))]; ok {
		return code
	}
	return "en"
}

// LanguageInstruction tells the model which language to write in.
func LanguageInstruction(code string) string {
	if name, ok := languageNames[code]; ok {
		return "IMPORTANT: Write the email in " + name + ". Be polite and formal."
	}
	return "IMPORTANT: Write the email in ENGLISH. Use formal business language."
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func sanitize(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	return strings.Join(strings.Fields(v), " ")
}
