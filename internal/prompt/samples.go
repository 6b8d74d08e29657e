package prompt

// SampleQuestions are the canned questions offered by the interactive front ends.
var SampleQuestions = []string{
	"What are the key accounting principles?",
	"Explain depreciation methods",
	"What is the difference between GAAP and IFRS?",
	"How do you calculate working capital?",
	"What are the components of financial statements?",
	"Explain revenue recognition principles",
	"What is internal auditing?",
	"How do you prepare a cash flow statement?",
	"What are the types of business expenses?",
	"Explain cost accounting methods",
}
