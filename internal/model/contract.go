package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AgreementCohabitation = "cohabitation"
	AgreementPrenuptial   = "prenuptial"
	AgreementPostnuptial  = "postnuptial"
)

const (
	ResidenceUserOwns    = "user_owns"
	ResidencePartnerOwns = "partner_owns"
	ResidenceJoint       = "joint"
	ResidenceRenting     = "renting"
)

const (
	ExpenseEqual        = "equal"
	ExpenseProportional = "proportional"
	ExpenseSeparate     = "separate"
)

// Party holds one side's personal details.
type Party struct {
	FullName string           `json:"full_name"`
	Pronouns string           `json:"pronouns"`
	Age      *int             `json:"age"`
	JobTitle string           `json:"job_title"`
	Income   *decimal.Decimal `json:"income"`
	Email    string           `json:"email"`
	Phone    string           `json:"phone"`
	Address  string           `json:"address"`
}

type Child struct {
	Name         string `json:"name"`
	Birthdate    Date   `json:"birthdate"`
	Relationship string `json:"relationship"`
	Parentage    string `json:"parentage"`
}

type AssetItem struct {
	Particulars  string           `json:"particulars"`
	DateAcquired Date             `json:"date_acquired"`
	Value        *decimal.Decimal `json:"value"`
}

type DebtItem struct {
	Particulars    string           `json:"particulars"`
	DateIncurred   Date             `json:"date_incurred"`
	Balance        *decimal.Decimal `json:"balance"`
	MonthlyPayment *decimal.Decimal `json:"monthly_payment"`
}

// Schedule is one party's financial disclosure. Schedule A belongs to the
// user, Schedule B to the partner.
type Schedule struct {
	EmploymentIncome *decimal.Decimal `json:"employment_income"`
	BusinessIncome   *decimal.Decimal `json:"business_income"`
	InvestmentIncome *decimal.Decimal `json:"investment_income"`
	OtherIncome      *decimal.Decimal `json:"other_income"`

	RealEstate        []AssetItem `json:"real_estate"`
	Vehicles          []AssetItem `json:"vehicles"`
	BankAccounts      []AssetItem `json:"bank_accounts"`
	Investments       []AssetItem `json:"investments"`
	Pensions          []AssetItem `json:"pensions"`
	BusinessInterests []AssetItem `json:"business_interests"`
	OtherAssets       []AssetItem `json:"other_assets"`

	Mortgages      []DebtItem `json:"mortgages"`
	LoansAndCredit []DebtItem `json:"loans_and_credit"`
	OtherDebts     []DebtItem `json:"other_debts"`
}

// AssetCategories returns the asset lists keyed by template name, in a fixed order.
func (s Schedule) AssetCategories() []NamedAssets {
	return []NamedAssets{
		{"realEstate", s.RealEstate},
		{"vehicles", s.Vehicles},
		{"bankAccounts", s.BankAccounts},
		{"investments", s.Investments},
		{"pensions", s.Pensions},
		{"businessInterests", s.BusinessInterests},
		{"otherAssets", s.OtherAssets},
	}
}

// DebtCategories returns the debt lists keyed by template name, in a fixed order.
func (s Schedule) DebtCategories() []NamedDebts {
	return []NamedDebts{
		{"mortgages", s.Mortgages},
		{"loansAndCredit", s.LoansAndCredit},
		{"otherDebts", s.OtherDebts},
	}
}

type NamedAssets struct {
	Name  string
	Items []AssetItem
}

type NamedDebts struct {
	Name  string
	Items []DebtItem
}

type Contract struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	TeamID        int64  `json:"team_id"`
	AgreementType string `json:"agreement_type"`

	User    Party `json:"user"`
	Partner Party `json:"partner"`

	CohabitationDate   Date   `json:"cohabitation_date"`
	MarriageDate       Date   `json:"marriage_date"`
	ResidenceOwnership string `json:"residence_ownership"`
	ExpenseSplit       string `json:"expense_split"`

	Children  []Child  `json:"children"`
	ScheduleA Schedule `json:"schedule_a"`
	ScheduleB Schedule `json:"schedule_b"`

	UserLawyerID    *int64 `json:"user_lawyer_id"`
	PartnerLawyerID *int64 `json:"partner_lawyer_id"`

	IsPaid            bool       `json:"is_paid"`
	TermsAccepted     bool       `json:"terms_accepted"`
	IsCurrentContract bool       `json:"is_current_contract"`
	PaidAt            *time.Time `json:"paid_at"`
	CouponCode        *string    `json:"coupon_code"`
	AffiliateCode     *string    `json:"affiliate_code"`
	AmountPaidCents   int64      `json:"amount_paid_cents"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
