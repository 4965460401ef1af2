package model

import "time"

// CharacterSheet is the assembled extraction output. Each field corresponds
// to one section of the fixed vocabulary; nil means the section was absent
// or failed to parse.
type CharacterSheet struct {
	CharacterInfo     *CharacterInfo     `json:"characterInfo,omitempty"`
	Appearance        *Appearance        `json:"appearance,omitempty"`
	AbilityScores     *AbilityScores     `json:"abilityScores,omitempty"`
	SavingThrows      *SavingThrows      `json:"savingThrows,omitempty"`
	Skills            []Skill            `json:"skills,omitempty"`
	Combat            *Combat            `json:"combat,omitempty"`
	Proficiencies     *Proficiencies     `json:"proficiencies,omitempty"`
	FeaturesAndTraits []Feature          `json:"featuresAndTraits,omitempty"`
	Equipment         *Equipment         `json:"equipment,omitempty"`
	Spellcasting      *Spellcasting      `json:"spellcasting,omitempty"`
	Persona           *Persona           `json:"persona,omitempty"`
	Backstory         *Backstory         `json:"backstory,omitempty"`
}

type CharacterInfo struct {
	Name             string `json:"name,omitempty"`
	Class            string `json:"class,omitempty"`
	Species          string `json:"species,omitempty"`
	Level            int    `json:"level,omitempty"`
	Background       string `json:"background,omitempty"`
	Alignment        string `json:"alignment,omitempty"`
	ExperiencePoints int    `json:"experiencePoints,omitempty"`
}

type Appearance struct {
	Age    string `json:"age,omitempty"`
	Height string `json:"height,omitempty"`
	Weight string `json:"weight,omitempty"`
	Eyes   string `json:"eyes,omitempty"`
	Skin   string `json:"skin,omitempty"`
	Hair   string `json:"hair,omitempty"`
}

type AbilityScores struct {
	Strength     int `json:"strength,omitempty"`
	Dexterity    int `json:"dexterity,omitempty"`
	Constitution int `json:"constitution,omitempty"`
	Intelligence int `json:"intelligence,omitempty"`
	Wisdom       int `json:"wisdom,omitempty"`
	Charisma     int `json:"charisma,omitempty"`
}

type SavingThrow struct {
	Proficient bool `json:"proficient,omitempty"`
	Bonus      int  `json:"bonus,omitempty"`
}

type SavingThrows struct {
	Strength     *SavingThrow `json:"strength,omitempty"`
	Dexterity    *SavingThrow `json:"dexterity,omitempty"`
	Constitution *SavingThrow `json:"constitution,omitempty"`
	Intelligence *SavingThrow `json:"intelligence,omitempty"`
	Wisdom       *SavingThrow `json:"wisdom,omitempty"`
	Charisma     *SavingThrow `json:"charisma,omitempty"`
}

type Skill struct {
	Name       string `json:"name,omitempty"`
	Ability    string `json:"ability,omitempty"`
	Proficient bool   `json:"proficient,omitempty"`
	Bonus      int    `json:"bonus,omitempty"`
}

type DeathSaves struct {
	Successes int `json:"successes,omitempty"`
	Failures  int `json:"failures,omitempty"`
}

type Combat struct {
	ArmorClass         int         `json:"armorClass,omitempty"`
	Initiative         int         `json:"initiative,omitempty"`
	Speed              int         `json:"speed,omitempty"`
	HitPointMaximum    int         `json:"hitPointMaximum,omitempty"`
	CurrentHitPoints   int         `json:"currentHitPoints,omitempty"`
	TemporaryHitPoints int         `json:"temporaryHitPoints,omitempty"`
	HitDice            string      `json:"hitDice,omitempty"`
	DeathSaves         *DeathSaves `json:"deathSaves,omitempty"`
}

type Proficiencies struct {
	Armor     []string `json:"armor,omitempty"`
	Weapons   []string `json:"weapons,omitempty"`
	Tools     []string `json:"tools,omitempty"`
	Languages []string `json:"languages,omitempty"`
}

type Feature struct {
	Name        string `json:"name,omitempty"`
	Source      string `json:"source,omitempty"`
	Description string `json:"description,omitempty"`
}

type EquipmentItem struct {
	Name     string `json:"name,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

// Currency uses the standard 5e coin abbreviations as JSON keys, matching
// what sheets print and what the extraction prompt asks for.
type Currency struct {
	Copper   int `json:"cp,omitempty"`
	Silver   int `json:"sp,omitempty"`
	Electrum int `json:"ep,omitempty"`
	Gold     int `json:"gp,omitempty"`
	Platinum int `json:"pp,omitempty"`
}

type Equipment struct {
	Items    []EquipmentItem `json:"items,omitempty"`
	Currency *Currency       `json:"currency,omitempty"`
}

type SpellSlot struct {
	Level    int `json:"level,omitempty"`
	Total    int `json:"total,omitempty"`
	Expended int `json:"expended,omitempty"`
}

type Spell struct {
	Name     string `json:"name,omitempty"`
	Level    int    `json:"level,omitempty"`
	Prepared bool   `json:"prepared,omitempty"`
}

type Spellcasting struct {
	Ability     string      `json:"ability,omitempty"`
	SaveDC      int         `json:"saveDC,omitempty"`
	AttackBonus int         `json:"attackBonus,omitempty"`
	Slots       []SpellSlot `json:"slots,omitempty"`
	Spells      []Spell     `json:"spells,omitempty"`
}

type Persona struct {
	PersonalityTraits string `json:"personalityTraits,omitempty"`
	Ideals            string `json:"ideals,omitempty"`
	Bonds             string `json:"bonds,omitempty"`
	Flaws             string `json:"flaws,omitempty"`
}

type Backstory struct {
	Backstory              string `json:"backstory,omitempty"`
	AlliesAndOrganizations string `json:"alliesAndOrganizations,omitempty"`
	Treasure               string `json:"treasure,omitempty"`
}

// Character is the record created from a successful extraction. The full
// character CRUD graph lives outside this service; only the fields the
// result endpoint reports are modelled here.
type Character struct {
	ID        int64           `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Name      string          `json:"name"`
	Class     string          `json:"class"`
	Species   string          `json:"species"`
	Sheet     *CharacterSheet `json:"sheet"`
	CreatedAt time.Time       `json:"createdAt"`
}
