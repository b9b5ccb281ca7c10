package document

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cohabit/internal/model"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func date(y int, m time.Month, d int) model.Date {
	return model.NewDate(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func TestPreparePlaceholders(t *testing.T) {
	c := &model.Contract{ID: 7, AgreementType: model.AgreementCohabitation}
	f := Prepare(c, nil, PrepareOptions{})

	assert.Equal(t, "[Your Name]", f["userFullName"])
	assert.Equal(t, "[Partner Name]", f["partnerFullName"])
	assert.Equal(t, "[Your Income]", f["userIncome"])
	assert.Equal(t, "[Partner Age]", f["partnerAge"])
	assert.Nil(t, f["userIncomeAmount"])
	assert.Equal(t, "", f["cohabitationDate"])
	assert.Equal(t, "", f["agreementDate"])
	assert.Equal(t, "[Amount]", f["scheduleA_employmentIncome"])
	assert.Equal(t, "$0 CAD", f["scheduleB_netWorth"])
	assert.Equal(t, false, f["has_user_lawyer"])
	assert.Equal(t, "", f["partnerLawyerName"])
}

func TestPrepareUserEmailFallsBackToAccount(t *testing.T) {
	c := &model.Contract{}
	f := Prepare(c, &model.User{Email: "jane@example.com"}, PrepareOptions{})
	assert.Equal(t, "jane@example.com", f["userEmail"])

	c.User.Email = "other@example.com"
	f = Prepare(c, &model.User{Email: "jane@example.com"}, PrepareOptions{})
	assert.Equal(t, "other@example.com", f["userEmail"])
}

func TestPreparePronouns(t *testing.T) {
	tests := []struct {
		pronouns string
		want     map[string]any
	}{
		{"he/him/his", map[string]any{"_is_he": true, "_is_she": false, "_is_they": false, "_he": "he", "_her": "him", "_his": "his", "_hers": "his"}},
		{"she/her/hers", map[string]any{"_is_he": false, "_is_she": true, "_is_they": false, "_he": "she", "_her": "her", "_his": "her", "_hers": "hers"}},
		{"they/them/theirs", map[string]any{"_is_he": false, "_is_she": false, "_is_they": true, "_he": "they", "_her": "them", "_his": "their", "_hers": "theirs"}},
	}
	for _, tt := range tests {
		t.Run(tt.pronouns, func(t *testing.T) {
			c := &model.Contract{Partner: model.Party{Pronouns: tt.pronouns}}
			f := Prepare(c, nil, PrepareOptions{})
			for suffix, want := range tt.want {
				assert.Equal(t, want, f["partner"+suffix], suffix)
			}
			assert.Equal(t, tt.pronouns, f["partnerPronouns"])
		})
	}
}

func TestPreparePronounsRequireExactMatch(t *testing.T) {
	for _, value := range []string{"She/Her/Hers", "ze/zir/zirs", ""} {
		c := &model.Contract{User: model.Party{Pronouns: value}}
		f := Prepare(c, nil, PrepareOptions{})
		for _, k := range pronounKeys("user") {
			v, ok := f[k]
			assert.True(t, ok, "%s present for %q", k, value)
			assert.Nil(t, v, "%s for %q", k, value)
		}
	}
}

func TestChildrenStatus(t *testing.T) {
	assert.Equal(t, noChildrenSentence, ChildrenStatus(nil))
	assert.Equal(t,
		"The parties have 1 child of the relationship: Sam (born January 1, 2020).",
		ChildrenStatus([]model.Child{{Name: "Sam", Birthdate: date(2020, time.January, 1)}}))
	assert.Equal(t,
		"The parties have 2 children of the relationship: Sam (born January 1, 2020), [Child Name].",
		ChildrenStatus([]model.Child{{Name: "Sam", Birthdate: date(2020, time.January, 1)}, {}}))
}

func TestPrepareChildren(t *testing.T) {
	c := &model.Contract{Children: []model.Child{
		{Name: "Sam", Birthdate: date(2020, time.January, 1), Relationship: "biological"},
		{Name: "Alex"},
	}}
	f := Prepare(c, nil, PrepareOptions{})

	assert.Equal(t, true, f["has_children"])
	assert.Equal(t, 2, f["childrenCount"])
	assert.Equal(t, "two", f["childrenCountWords"])
	items, ok := f["children"].([]Fields)
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "January 1, 2020", items[0]["formattedBirthdate"])
	assert.Equal(t, "2020-01-01", items[0]["birthdate"])
	assert.Equal(t, "", items[1]["formattedBirthdate"])
}

func TestPrepareNoChildrenIsEmptyList(t *testing.T) {
	f := Prepare(&model.Contract{}, nil, PrepareOptions{})
	items, ok := f["children"].([]Fields)
	require.True(t, ok)
	assert.Empty(t, items)
	assert.Equal(t, false, f["has_children"])
	assert.Equal(t, noChildrenSentence, f["childrenStatus"])
}

func TestPrepareSchedule(t *testing.T) {
	c := &model.Contract{ScheduleA: model.Schedule{
		EmploymentIncome: dec("85000"),
		OtherIncome:      dec("1500.5"),
		RealEstate: []model.AssetItem{
			{Particulars: "House", DateAcquired: date(2019, time.June, 15), Value: dec("350000")},
			{Particulars: "Cabin"},
		},
		Vehicles:  []model.AssetItem{{Particulars: "Truck", Value: dec("25000")}},
		Mortgages: []model.DebtItem{{Particulars: "House", Balance: dec("200000"), MonthlyPayment: dec("1450")}},
	}}
	f := Prepare(c, nil, PrepareOptions{})

	assert.Equal(t, "$85,000 CAD", f["scheduleA_employmentIncome"])
	assert.Equal(t, "$86,500.5 CAD", f["scheduleA_totalIncome"])
	assert.Equal(t, "$375,000 CAD", f["scheduleA_totalAssets"])
	assert.Equal(t, "$200,000 CAD", f["scheduleA_totalDebts"])
	assert.Equal(t, "$175,000 CAD", f["scheduleA_netWorth"])

	estate, ok := f["scheduleA_realEstate"].([]Fields)
	require.True(t, ok)
	require.Len(t, estate, 2)
	assert.Equal(t, "$350,000 CAD", estate[0]["formattedValue"])
	assert.Equal(t, "June 15, 2019", estate[0]["formattedDateAcquired"])
	assert.Equal(t, "[Amount]", estate[1]["formattedValue"])
	assert.Nil(t, estate[1]["value"])

	mortgages, ok := f["scheduleA_mortgages"].([]Fields)
	require.True(t, ok)
	assert.Equal(t, "$1,450 CAD", mortgages[0]["formattedMonthlyPayment"])

	empty, ok := f["scheduleB_pensions"].([]Fields)
	require.True(t, ok)
	assert.Empty(t, empty)
}

func TestPrepareLawyersAndDate(t *testing.T) {
	now := time.Date(2024, time.May, 3, 15, 0, 0, 0, time.UTC)
	f := Prepare(&model.Contract{}, nil, PrepareOptions{
		Now:        now,
		UserLawyer: &model.Lawyer{Name: "Pat Counsel", Firm: "Counsel LLP", Email: "pat@example.com", Phone: "555-0100"},
	})
	assert.Equal(t, "May 3, 2024", f["agreementDate"])
	assert.Equal(t, true, f["has_user_lawyer"])
	assert.Equal(t, "Pat Counsel", f["userLawyerName"])
	assert.Equal(t, "Counsel LLP", f["userLawyerFirm"])
	assert.Equal(t, false, f["has_partner_lawyer"])
}

func TestPrepareAgreementFlags(t *testing.T) {
	f := Prepare(&model.Contract{AgreementType: model.AgreementPrenuptial, ResidenceOwnership: model.ResidenceRenting}, nil, PrepareOptions{})
	assert.Equal(t, true, f["is_prenuptial"])
	assert.Equal(t, false, f["is_cohabitation"])
	assert.Equal(t, "Prenuptial Agreement", f["agreementTitle"])
	assert.Equal(t, true, f["residence_renting"])
	assert.Equal(t, false, f["residence_joint"])
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0 CAD"},
		{"1234.5", "$1,234.5 CAD"},
		{"1234.50", "$1,234.5 CAD"},
		{"1234567.891", "$1,234,567.89 CAD"},
		{"999.999", "$1,000 CAD"},
		{"-2500", "-$2,500 CAD"},
		{"0.05", "$0.05 CAD"},
		{"99999999999999999999", "$99,999,999,999,999,999,999 CAD"},
		{"-12345678901234567890.25", "-$12,345,678,901,234,567,890.25 CAD"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.in)))
		})
	}
}
