package person

// Sender is the Person a message is sent from.
type Sender struct {
	Person
}

// NewSender validates email and returns a Sender.
func NewSender(email, name string) (Sender, error) {
	p, err := New(email, name)
	if err != nil {
		return Sender{}, err
	}
	return Sender{Person: p}, nil
}

// Recipient is a Person a message is delivered to.
type Recipient struct {
	Person
}

// NewRecipient validates email and returns a Recipient.
func NewRecipient(email, name string) (Recipient, error) {
	p, err := New(email, name)
	if err != nil {
		return Recipient{}, err
	}
	return Recipient{Person: p}, nil
}

// RecipientSet is a single Recipient or a list of them.
type RecipientSet interface {
	List() []Recipient
}

// List returns r as a one-element list.
func (r Recipient) List() []Recipient {
	return []Recipient{r}
}

// Recipients is an ordered list of recipients.
type Recipients []Recipient

// List returns the recipients in order.
func (rs Recipients) List() []Recipient {
	return rs
}

// Emails returns the bare addresses in order.
func (rs Recipients) Emails() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Email()
	}
	return out
}
