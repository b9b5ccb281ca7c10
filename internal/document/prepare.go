package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/divan/num2words"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/cohabit/internal/model"
)

// Fields is the substitution map handed to the renderer.
type Fields map[string]any

const noChildrenSentence = "The parties have no children of the relationship as of the date of this Agreement."

// PrepareOptions carries the inputs that do not live on the contract row.
type PrepareOptions struct {
	Now           time.Time
	UserLawyer    *model.Lawyer
	PartnerLawyer *model.Lawyer
}

type partyLabels struct {
	prefix string
	whose  string // "Your" or "Partner"
}

var (
	userLabels    = partyLabels{prefix: "user", whose: "Your"}
	partnerLabels = partyLabels{prefix: "partner", whose: "Partner"}
)

func (l partyLabels) placeholder(field string) string {
	return "[" + l.whose + " " + field + "]"
}

// Prepare maps a contract to template fields. Display scalars that are
// missing become bracketed placeholders so reviewers can spot gaps; dates
// and lawyer details become "" so templates can hide them; pronoun fields
// become nil unless the pronouns match a canonical set.
func Prepare(c *model.Contract, u *model.User, opts PrepareOptions) Fields {
	f := Fields{
		"contractId":     c.ID,
		"agreementType":  c.AgreementType,
		"agreementTitle": AgreementTitle(c.AgreementType),
		"agreementDate":  "",

		"is_cohabitation": c.AgreementType == model.AgreementCohabitation,
		"is_prenuptial":   c.AgreementType == model.AgreementPrenuptial,
		"is_postnuptial":  c.AgreementType == model.AgreementPostnuptial,

		"cohabitationDate": longDate(c.CohabitationDate),
		"marriageDate":     longDate(c.MarriageDate),

		"residenceOwnership":     c.ResidenceOwnership,
		"residence_user_owns":    c.ResidenceOwnership == model.ResidenceUserOwns,
		"residence_partner_owns": c.ResidenceOwnership == model.ResidencePartnerOwns,
		"residence_joint":        c.ResidenceOwnership == model.ResidenceJoint,
		"residence_renting":      c.ResidenceOwnership == model.ResidenceRenting,

		"expenseSplit":         c.ExpenseSplit,
		"expense_equal":        c.ExpenseSplit == model.ExpenseEqual,
		"expense_proportional": c.ExpenseSplit == model.ExpenseProportional,
		"expense_separate":     c.ExpenseSplit == model.ExpenseSeparate,
	}
	if !opts.Now.IsZero() {
		f["agreementDate"] = model.NewDate(opts.Now).Long()
	}

	user := c.User
	if strings.TrimSpace(user.Email) == "" && u != nil {
		user.Email = u.Email
	}
	addParty(f, userLabels, user)
	addParty(f, partnerLabels, c.Partner)
	addLawyer(f, userLabels.prefix, opts.UserLawyer)
	addLawyer(f, partnerLabels.prefix, opts.PartnerLawyer)

	addChildren(f, c.Children)
	addSchedule(f, "scheduleA", c.ScheduleA)
	addSchedule(f, "scheduleB", c.ScheduleB)
	return f
}

// AgreementTitle is the display name for an agreement type.
func AgreementTitle(agreementType string) string {
	switch agreementType {
	case model.AgreementPrenuptial:
		return "Prenuptial Agreement"
	case model.AgreementPostnuptial:
		return "Postnuptial Agreement"
	default:
		return "Cohabitation Agreement"
	}
}

func addParty(f Fields, l partyLabels, p model.Party) {
	p0 := l.prefix
	f[p0+"FullName"] = textOr(p.FullName, l.placeholder("Name"))
	f[p0+"Pronouns"] = textOr(p.Pronouns, l.placeholder("Pronouns"))
	f[p0+"JobTitle"] = textOr(p.JobTitle, l.placeholder("Job Title"))
	f[p0+"Email"] = textOr(p.Email, l.placeholder("Email"))
	f[p0+"Phone"] = textOr(p.Phone, l.placeholder("Phone"))
	f[p0+"Address"] = textOr(p.Address, l.placeholder("Address"))
	f[p0+"Income"] = moneyOr(p.Income, l.placeholder("Income"))

	if p.Age != nil {
		f[p0+"Age"] = strconv.Itoa(*p.Age)
	} else {
		f[p0+"Age"] = l.placeholder("Age")
	}
	if p.Income != nil {
		f[p0+"IncomeAmount"] = p.Income.InexactFloat64()
	} else {
		f[p0+"IncomeAmount"] = nil
	}
	addPronouns(f, p0, p.Pronouns)
}

func addLawyer(f Fields, prefix string, l *model.Lawyer) {
	f["has_"+prefix+"_lawyer"] = l != nil
	if l == nil {
		for _, k := range []string{"LawyerName", "LawyerFirm", "LawyerEmail", "LawyerPhone"} {
			f[prefix+k] = ""
		}
		return
	}
	f[prefix+"LawyerName"] = l.Name
	f[prefix+"LawyerFirm"] = l.Firm
	f[prefix+"LawyerEmail"] = l.Email
	f[prefix+"LawyerPhone"] = l.Phone
}

func addChildren(f Fields, children []model.Child) {
	items := make([]Fields, 0, len(children))
	for _, ch := range children {
		items = append(items, Fields{
			"name":               ch.Name,
			"displayName":        textOr(ch.Name, "[Child Name]"),
			"birthdate":          rawDate(ch.Birthdate),
			"formattedBirthdate": longDate(ch.Birthdate),
			"relationship":       ch.Relationship,
			"parentage":          ch.Parentage,
		})
	}
	f["children"] = items
	f["has_children"] = len(children) > 0
	f["childrenCount"] = len(children)
	f["childrenCountWords"] = num2words.Convert(len(children))
	f["childrenStatus"] = ChildrenStatus(children)
}

// ChildrenStatus is the narrative sentence describing the couple's children.
func ChildrenStatus(children []model.Child) string {
	if len(children) == 0 {
		return noChildrenSentence
	}
	entries := make([]string, 0, len(children))
	for _, ch := range children {
		entry := textOr(ch.Name, "[Child Name]")
		if !ch.Birthdate.IsZero() {
			entry += " (born " + ch.Birthdate.Long() + ")"
		}
		entries = append(entries, entry)
	}
	noun := "child"
	if len(children) > 1 {
		noun = "children"
	}
	return fmt.Sprintf("The parties have %d %s of the relationship: %s.", len(children), noun, strings.Join(entries, ", "))
}

func addSchedule(f Fields, prefix string, s model.Schedule) {
	key := func(name string) string { return prefix + "_" + name }

	f[key("employmentIncome")] = moneyOr(s.EmploymentIncome, "[Amount]")
	f[key("businessIncome")] = moneyOr(s.BusinessIncome, "[Amount]")
	f[key("investmentIncome")] = moneyOr(s.InvestmentIncome, "[Amount]")
	f[key("otherIncome")] = moneyOr(s.OtherIncome, "[Amount]")
	income := sum(s.EmploymentIncome, s.BusinessIncome, s.InvestmentIncome, s.OtherIncome)

	assets := decimal.Zero
	for _, cat := range s.AssetCategories() {
		items := make([]Fields, 0, len(cat.Items))
		for _, a := range cat.Items {
			assets = assets.Add(sum(a.Value))
			items = append(items, Fields{
				"particulars":           a.Particulars,
				"dateAcquired":          rawDate(a.DateAcquired),
				"value":                 rawDecimal(a.Value),
				"formattedValue":        moneyOr(a.Value, "[Amount]"),
				"formattedDateAcquired": longDate(a.DateAcquired),
			})
		}
		f[key(cat.Name)] = items
	}

	debts := decimal.Zero
	for _, cat := range s.DebtCategories() {
		items := make([]Fields, 0, len(cat.Items))
		for _, d := range cat.Items {
			debts = debts.Add(sum(d.Balance))
			items = append(items, Fields{
				"particulars":             d.Particulars,
				"dateIncurred":            rawDate(d.DateIncurred),
				"balance":                 rawDecimal(d.Balance),
				"monthlyPayment":          rawDecimal(d.MonthlyPayment),
				"formattedBalance":        moneyOr(d.Balance, "[Amount]"),
				"formattedMonthlyPayment": moneyOr(d.MonthlyPayment, "[Amount]"),
				"formattedDateIncurred":   longDate(d.DateIncurred),
			})
		}
		f[key(cat.Name)] = items
	}

	f[key("totalIncome")] = FormatMoney(income)
	f[key("totalAssets")] = FormatMoney(assets)
	f[key("totalDebts")] = FormatMoney(debts)
	f[key("netWorth")] = FormatMoney(assets.Sub(debts))
}
