package extract

// Instruction is the fixed template sent ahead of every message. Keys are
// spelled out in snake_case so strict mode can decode the answer.
const Instruction = "Your input is a short transaction message transcribed from speech. " +
	"Extract these fields: amount, transaction_type, bank_name, card_type, paid_to, merchant, " +
	"transaction_mode, transaction_date, reference_number, category_tag.\n" +
	"category_tag is the spending category implied by the merchant, for example Amazon is \"shopping\" and Zomato is \"eating\".\n" +
	"If a field is not mentioned, set it to null. Never omit a field and never guess one.\n" +
	"If the mode of payment is not mentioned, use \"cash\" for transaction_mode.\n" +
	"The message comes from a person talking, so it may be only a few words and loosely phrased, " +
	"for example \"today I spent 500 at dominoze\". Handle it carefully.\n" +
	"If the message names several items with separate prices, return a JSON list with one object per item. " +
	"Otherwise return a single JSON object.\n" +
	"Return only the JSON, with no explanation and no Markdown."

// BuildPrompt joins the instruction and the user's text.
func BuildPrompt(text string) string {
	return Instruction + "\nMessage: " + text
}
