package main

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"library-circulation/library"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath, dbPath string

	root := &cobra.Command{
		Use:           "libcirc",
		Short:         "Library circulation desk: catalog, members, loans and fines",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "library.yaml", "path to config file")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "override database path")

	open := func() (*library.Library, error) {
		cfg, err := library.LoadConfig(cfgPath)
		if err != nil {
			return nil, err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		return library.Open(cfg)
	}

	root.AddCommand(
		booksCmd(open),
		membersCmd(open),
		borrowCmd(open),
		returnCmd(open),
		renewCmd(open),
		loansCmd(open),
		overdueCmd(open),
		historyCmd(open),
		finesCmd(open),
		statsCmd(open),
		loginCmd(open),
	)
	return root
}

type opener func() (*library.Library, error)

// withLibrary opens the store, runs fn, and always closes.
func withLibrary(open opener, fn func(lib *library.Library) error) error {
	lib, err := open()
	if err != nil {
		return err
	}
	defer lib.Close()
	return fn(lib)
}

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}

// parseDollars turns "2.50" into 250 cents.
func parseDollars(s string) (int64, error) {
	v, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return int64(math.Round(v * 100)), nil
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// books
// ---------------------------------------------------------------------------

func booksCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{Use: "books", Short: "Manage the catalog"}

	var b library.Book
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a title to the catalog",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withLibrary(open, func(lib *library.Library) error {
				id, err := lib.AddBook(b)
				if err != nil {
					return err
				}
				fmt.Printf("Added book ID %d: %s by %s (%d copies)\n", id, b.Title, b.Author, b.Quantity)
				return nil
			})
		},
	}
	add.Flags().StringVar(&b.Title, "title", "", "book title")
	add.Flags().StringVar(&b.Author, "author", "", "book author")
	add.Flags().IntVar(&b.Year, "year", 0, "publication year")
	add.Flags().StringVar(&b.ISBN, "isbn", "", "ISBN")
	add.Flags().StringVar(&b.Category, "category", "", "category")
	add.Flags().StringVar(&b.Location, "location", "", "shelf location")
	add.Flags().IntVar(&b.Quantity, "copies", 1, "number of copies owned")
	add.MarkFlagRequired("title")
	add.MarkFlagRequired("author")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the catalog",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withLibrary(open, func(lib *library.Library) error {
				books, err := lib.ListBooks()
				if err != nil {
					return err
				}
				printBooks(books)
				return nil
			})
		},
	}

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search title, author and ISBN",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withLibrary(open, func(lib *library.Library) error {
				books, err := lib.SearchBooks(args[0])
				if err != nil {
					return err
				}
				printBooks(books)
				return nil
			})
		},
	}

	setCopies := &cobra.Command{
		Use:   "set-copies <bookID> <quantity>",
		Short: "Change how many copies the library owns",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			bookID, err := parseID(args[0], "book id")
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			return withLibrary(open, func(lib *library.Library) error {
				book, err := lib.UpdateBookCopies(bookID, qty)
				if err != nil {
					return err
				}
				fmt.Printf("Book %d now has %d copies, %d available.\n", book.ID, book.Quantity, book.Available)
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, search, setCopies)
	return cmd
}

func printBooks(books []*library.Book) {
	if len(books) == 0 {
		fmt.Println("No books found.")
		return
	}
	fmt.Printf("%-5s %-35s %-25s %-14s %s\n", "ID", "Title", "Author", "ISBN", "Available")
	for _, b := range books {
		fmt.Printf("%-5d %-35s %-25s %-14s %d/%d\n", b.ID, b.Title, b.Author, b.ISBN, b.Available, b.Quantity)
	}
}

// ---------------------------------------------------------------------------
// members
// ---------------------------------------------------------------------------

func membersCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{Use: "members", Short: "Manage members"}

	var p library.RegisterMemberParams
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a new member with a login account",
		RunE: func(_ *cobra.Command, _ []string) error {
			password, err := readPassword("Password for new member: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			p.Password = password
			return withLibrary(open, func(lib *library.Library) error {
				m, err := lib.RegisterMember(p)
				if err != nil {
					return err
				}
				fmt.Printf("Registered member ID %d (%s, %s)\n", m.ID, m.Name, m.StudentID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&p.Username, "username", "", "login username")
	add.Flags().StringVar(&p.StudentID, "student-id", "", "student id")
	add.Flags().StringVar(&p.Name, "name", "", "full name")
	add.Flags().StringVar(&p.Email, "email", "", "email address")
	add.Flags().StringVar(&p.Phone, "phone", "", "phone number")
	add.Flags().StringVar(&p.Department, "department", "", "department")
	add.Flags().IntVar(&p.YearOfStudy, "year", 0, "year of study")
	add.MarkFlagRequired("username")
	add.MarkFlagRequired("student-id")
	add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withLibrary(open, func(lib *library.Library) error {
				members, err := lib.ListMembers()
				if err != nil {
					return err
				}
				fmt.Printf("%-5s %-10s %-25s %-10s %-10s %s\n", "ID", "Student", "Name", "Status", "Fines", "Paid")
				for _, m := range members {
					fmt.Printf("%-5d %-10s %-25s %-10s %-10s %s\n",
						m.ID, m.StudentID, m.Name, m.Status,
						library.FormatCents(m.TotalFines), library.FormatCents(m.PaidFines))
				}
				return nil
			})
		},
	}

	setStatus := &cobra.Command{
		Use:   "set-status <memberID> <active|blocked|suspended>",
		Short: "Administratively change a member's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member id")
			if err != nil {
				return err
			}
			return withLibrary(open, func(lib *library.Library) error {
				if err := lib.SetMemberStatus(memberID, library.MemberStatus(args[1])); err != nil {
					return err
				}
				fmt.Printf("Member %d is now %s.\n", memberID, args[1])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, setStatus)
	return cmd
}

// ---------------------------------------------------------------------------
// circulation
// ---------------------------------------------------------------------------

func borrowCmd(open opener) *cobra.Command {
	var actor int64
	cmd := &cobra.Command{
		Use:   "borrow <memberID> <bookID>",
		Short: "Lend a copy to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member id")
			if err != nil {
				return err
			}
			bookID, err := parseID(args[1], "book id")
			if err != nil {
				return err
			}
			return withLibrary(open, func(lib *library.Library) error {
				b, err := lib.Borrow(memberID, bookID, actor, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("Borrowing %d created. Due %s.\n", b.ID, b.DueDate.Format("2006-01-02"))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&actor, "actor", 0, "user id of the librarian recording the loan")
	cmd.MarkFlagRequired("actor")
	return cmd
}

func returnCmd(open opener) *cobra.Command {
	var actor int64
	cmd := &cobra.Command{
		Use:   "return <borrowingID>",
		Short: "Take a copy back and charge any overdue fine",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseID(args[0], "borrowing id")
			if err != nil {
				return err
			}
			return withLibrary(open, func(lib *library.Library) error {
				b, err := lib.Return(id, actor, time.Now())
				if err != nil {
					return err
				}
				if b.FineAmount > 0 {
					fmt.Printf("Returned. Overdue fine charged: %s.\n", library.FormatCents(b.FineAmount))
				} else {
					fmt.Println("Returned on time. No fine.")
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&actor, "actor", 0, "user id of the librarian recording the return")
	cmd.MarkFlagRequired("actor")
	return cmd
}

func renewCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "renew <borrowingID>",
		Short: "Extend a loan by one loan period",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := parseID(args[0], "borrowing id")
			if err != nil {
				return err
			}
			return withLibrary(open, func(lib *library.Library) error {
				b, err := lib.Renew(id, time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("Renewed. New due date: %s.\n", b.DueDate.Format("2006-01-02"))
				return nil
			})
		},
	}
}

func loansCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "loans <memberID>",
		Short: "List a member's open loans",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member id")
			if err != nil {
				return err
			}
			return withLibrary(open, func(lib *library.Library) error {
				views, err := lib.ListCurrentBorrowings(memberID, time.Now())
				if err != nil {
					return err
				}
				printBorrowings(views)
				return nil
			})
		},
	}
}

func overdueCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue [memberID]",
		Short: "List overdue loans, for one member or everyone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withLibrary(open, func(lib *library.Library) error {
				var views []*library.BorrowingView
				var err error
				if len(args) == 1 {
					var memberID int64
					if memberID, err = parseID(args[0], "member id"); err != nil {
						return err
					}
					views, err = lib.ListOverdue(memberID, time.Now())
				} else {
					views, err = lib.ListAllOverdue(time.Now())
				}
				if err != nil {
					return err
				}
				printBorrowings(views)
				return nil
			})
		},
	}
}

func historyCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "history <memberID>",
		Short: "List a member's returned loans",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member id")
			if err != nil {
				return err
			}
			return withLibrary(open, func(lib *library.Library) error {
				views, err := lib.BorrowingHistory(memberID, time.Now())
				if err != nil {
					return err
				}
				printBorrowings(views)
				return nil
			})
		},
	}
}

func printBorrowings(views []*library.BorrowingView) {
	if len(views) == 0 {
		fmt.Println("No borrowings found.")
		return
	}
	fmt.Printf("%-5s %-30s %-20s %-12s %-10s %s\n", "ID", "Title", "Member", "Due", "Status", "Fine")
	for _, v := range views {
		status := string(v.Status)
		fine := library.FormatCents(v.FineAmount)
		if v.DaysOverdue > 0 {
			status = fmt.Sprintf("overdue %dd", v.DaysOverdue)
			fine = library.FormatCents(v.AccruedFine)
		}
		fmt.Printf("%-5d %-30s %-20s %-12s %-10s %s\n",
			v.ID, v.BookTitle, v.MemberName, v.DueDate.Format("2006-01-02"), status, fine)
	}
}

// ---------------------------------------------------------------------------
// fines
// ---------------------------------------------------------------------------

func finesCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{Use: "fines", Short: "Fine ledger"}

	var payActor int64
	var method string
	pay := &cobra.Command{
		Use:   "pay <memberID> <borrowingID> <amount>",
		Short: "Record a fine payment",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member id")
			if err != nil {
				return err
			}
			borrowingID, err := parseID(args[1], "borrowing id")
			if err != nil {
				return err
			}
			amount, err := parseDollars(args[2])
			if err != nil {
				return err
			}
			return withLibrary(open, func(lib *library.Library) error {
				ft, err := lib.Pay(memberID, borrowingID, amount, method, payActor)
				if err != nil {
					return err
				}
				fmt.Printf("Payment of %s recorded (ledger entry %d).\n", library.FormatCents(ft.Amount), ft.ID)
				return nil
			})
		},
	}
	pay.Flags().StringVar(&method, "method", "cash", "payment method")
	pay.Flags().Int64Var(&payActor, "actor", 0, "user id of the librarian processing the payment")
	pay.MarkFlagRequired("actor")

	var waiveActor int64
	var note string
	waive := &cobra.Command{
		Use:   "waive <memberID> <borrowingID> <amount>",
		Short: "Waive part of an outstanding fine",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member id")
			if err != nil {
				return err
			}
			borrowingID, err := parseID(args[1], "borrowing id")
			if err != nil {
				return err
			}
			amount, err := parseDollars(args[2])
			if err != nil {
				return err
			}
			return withLibrary(open, func(lib *library.Library) error {
				ft, err := lib.Waive(memberID, borrowingID, amount, waiveActor, note)
				if err != nil {
					return err
				}
				fmt.Printf("Waived %s (ledger entry %d).\n", library.FormatCents(ft.Amount), ft.ID)
				return nil
			})
		},
	}
	waive.Flags().StringVar(&note, "note", "", "reason for the waiver")
	waive.Flags().Int64Var(&waiveActor, "actor", 0, "user id of the librarian waiving the fine")
	waive.MarkFlagRequired("actor")

	list := &cobra.Command{
		Use:   "list <memberID>",
		Short: "Show a member's ledger and balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			memberID, err := parseID(args[0], "member id")
			if err != nil {
				return err
			}
			return withLibrary(open, func(lib *library.Library) error {
				txs, err := lib.ListFineTransactions(memberID)
				if err != nil {
					return err
				}
				for _, ft := range txs {
					fmt.Printf("%-5d borrowing %-5d %-8s %-10s %s\n",
						ft.ID, ft.BorrowingID, ft.Type, library.FormatCents(ft.Amount),
						ft.CreatedAt.Format("2006-01-02"))
				}
				sum, err := lib.MemberFineSummary(memberID)
				if err != nil {
					return err
				}
				fmt.Printf("Charged %s, paid %s, waived %s. Outstanding: %s\n",
					library.FormatCents(sum.Charged), library.FormatCents(sum.Paid),
					library.FormatCents(sum.Waived), library.FormatCents(sum.Outstanding))
				return nil
			})
		},
	}

	cmd.AddCommand(pay, waive, list)
	return cmd
}

// ---------------------------------------------------------------------------
// misc
// ---------------------------------------------------------------------------

func statsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Circulation counters",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withLibrary(open, func(lib *library.Library) error {
				s, err := lib.Stats(time.Now())
				if err != nil {
					return err
				}
				fmt.Printf("Books: %d (%d copies)\n", s.Books, s.Copies)
				fmt.Printf("Members: %d\n", s.Members)
				fmt.Printf("Active loans: %d (%d overdue)\n", s.ActiveLoans, s.OverdueLoans)
				fmt.Printf("Outstanding fines: %s\n", library.FormatCents(s.OutstandingFines))
				return nil
			})
		},
	}
}

func loginCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "login <username>",
		Short: "Verify credentials and show the account role",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			password, err := readPassword("Password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			return withLibrary(open, func(lib *library.Library) error {
				u, err := lib.AuthenticateUser(args[0], password)
				if err != nil {
					return err
				}
				fmt.Printf("Welcome %s (user %d, role %s).\n", u.FullName, u.ID, u.Role)
				return nil
			})
		},
	}
}
